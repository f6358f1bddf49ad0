package events

// VisitRecorded is emitted when a redirect succeeds and a visit must be
// applied to the link's statistics.
type VisitRecorded struct {
	EventID    string `json:"eventId"`
	LinkID     string `json:"linkId"`
	Address    string `json:"address"`
	DomainID   string `json:"domainId,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	Referrer   string `json:"referrer,omitempty"`
	RemoteIP   string `json:"remoteIp,omitempty"`
	OccurredAt string `json:"occurredAt"`
}
