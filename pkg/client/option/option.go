package option

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hilthontt/chorus/pkg/client/internal/requestconfig"
)

type RequestOption = requestconfig.RequestOption

type Middleware = requestconfig.Middleware
type MiddlewareNext = requestconfig.MiddlewareNext

func WithBaseURL(base string) RequestOption {
	return func(r *requestconfig.RequestConfig) error {
		u, err := url.Parse(strings.TrimSuffix(base, "/") + "/")
		if err != nil {
			return err
		}
		r.BaseURL = u
		return nil
	}
}

func WithToken(token string) RequestOption {
	return func(r *requestconfig.RequestConfig) error {
		r.BearerToken = token
		return nil
	}
}

func WithHTTPClient(client requestconfig.HTTPDoer) RequestOption {
	return func(r *requestconfig.RequestConfig) error {
		r.HTTPClient = client
		return nil
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *requestconfig.RequestConfig) error {
		r.Request.Header.Set(key, value)
		return nil
	}
}

func WithMaxRetries(retries int) RequestOption {
	return func(r *requestconfig.RequestConfig) error {
		r.MaxRetries = max(retries, 0)
		return nil
	}
}

func WithRequestTimeout(d time.Duration) RequestOption {
	return func(r *requestconfig.RequestConfig) error {
		r.RequestTimeout = d
		return nil
	}
}

func WithResponseInto(dst **http.Response) RequestOption {
	return func(r *requestconfig.RequestConfig) error {
		r.ResponseInto = dst
		return nil
	}
}

// WithMiddleware runs mw around every attempt, outermost first.
func WithMiddleware(mw ...Middleware) RequestOption {
	return func(r *requestconfig.RequestConfig) error {
		r.Middlewares = append(r.Middlewares, mw...)
		return nil
	}
}

var sensitiveHeaderRegex = regexp.MustCompile(`(?im)^(Authorization|Cookie|Set-Cookie|Sec-Websocket-Protocol): .+$`)

func redactSensitiveHeaders(s string) string {
	return sensitiveHeaderRegex.ReplaceAllString(s, "$1: [REDACTED]")
}

func WithDebugLog(logger *log.Logger) RequestOption {
	if logger == nil {
		logger = log.Default()
	}

	return WithMiddleware(func(r *http.Request, next MiddlewareNext) (*http.Response, error) {
		if dump, err := httputil.DumpRequestOut(r, true); err == nil {
			logger.Printf("REQUEST:\n%s\n", redactSensitiveHeaders(string(dump)))
		}

		resp, err := next(r)

		if resp != nil {
			if dump, err := httputil.DumpResponse(resp, true); err == nil {
				logger.Printf("RESPONSE:\n%s\n", redactSensitiveHeaders(string(dump)))
			}
		}

		if err != nil {
			logger.Printf("REQUEST ERROR: %v", err)
		}

		return resp, err
	})
}
