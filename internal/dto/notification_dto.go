package dto

// PubSubPushRequest is the envelope Cloud Pub/Sub delivers to a push
// endpoint. Data is base64 on the wire; encoding/json decodes it into the
// byte slice directly.
type PubSubPushRequest struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// GmailNotification is the payload inside a Gmail watch push message.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}
