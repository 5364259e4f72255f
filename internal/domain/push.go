package domain

// PushSubscription is a Web Push registration, delivered by the client
// via the subscribe endpoint.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
}
