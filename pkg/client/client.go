// Package client talks to a chorus node over its REST API and realtime
// websocket.
package client

import (
	"context"
	"errors"
	"net/http"
	"os"
	"slices"

	"github.com/hilthontt/chorus/pkg/client/internal/requestconfig"
	"github.com/hilthontt/chorus/pkg/client/option"
)

type Error = requestconfig.Error

type Client struct {
	Options  []option.RequestOption
	Health   *HealthService
	Messages *MessageService
	Members  *MemberService
	Presence *PresenceService
	Rooms    *RoomService
}

// DefaultClientOptions reads CHORUS_BASE_URL and CHORUS_TOKEN.
func DefaultClientOptions() []option.RequestOption {
	defaults := []option.RequestOption{
		option.WithBaseURL("http://localhost:8080"),
	}
	if o, ok := os.LookupEnv("CHORUS_BASE_URL"); ok {
		defaults = append(defaults, option.WithBaseURL(o))
	}
	if o, ok := os.LookupEnv("CHORUS_TOKEN"); ok {
		defaults = append(defaults, option.WithToken(o))
	}
	return defaults
}

func NewClient(opts ...option.RequestOption) *Client {
	opts = append(DefaultClientOptions(), opts...)

	return &Client{
		Options:  opts,
		Health:   &HealthService{opts},
		Messages: &MessageService{opts},
		Members:  &MemberService{opts},
		Presence: &PresenceService{opts},
		Rooms:    &RoomService{opts},
	}
}

func (c *Client) Execute(ctx context.Context, method, path string, params, res any, opts ...option.RequestOption) error {
	opts = slices.Concat(c.Options, opts)
	return requestconfig.ExecuteNewRequest(ctx, method, path, params, res, opts...)
}

func (c *Client) Get(ctx context.Context, path string, res any, opts ...option.RequestOption) error {
	return c.Execute(ctx, http.MethodGet, path, nil, res, opts...)
}

func (c *Client) Post(ctx context.Context, path string, params, res any, opts ...option.RequestOption) error {
	return c.Execute(ctx, http.MethodPost, path, params, res, opts...)
}

func (c *Client) Put(ctx context.Context, path string, params, res any, opts ...option.RequestOption) error {
	return c.Execute(ctx, http.MethodPut, path, params, res, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, res any, opts ...option.RequestOption) error {
	return c.Execute(ctx, http.MethodDelete, path, nil, res, opts...)
}

func hasCode(err error, code string) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsNotAMember reports a refusal because the caller is outside the space.
func IsNotAMember(err error) bool { return hasCode(err, "not_a_member") }

// IsMissingPermission reports a refusal because the caller's roles lack a
// capability.
func IsMissingPermission(err error) bool { return hasCode(err, "missing_permission") }

func IsUnauthenticated(err error) bool {
	return hasCode(err, "unauthenticated") || hasCode(err, "token_expired")
}

func IsRateLimited(err error) bool { return hasCode(err, "rate_limited") }
