package rooms

type roomResponse struct {
	Room        string `json:"room"`
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	Subscribers int    `json:"subscribers"`
}
