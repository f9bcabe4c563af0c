// Package messages holds the wire records exchanged with the HUMAN protocol
// job flow. All payloads use snake_case field names; outbound messages are
// constructed fresh per send and never mutated afterwards.
package messages

// Signature header names of the protocol.
const (
	HeaderHumanSignature    = "X-human-signature"
	HeaderExchangeSignature = "X-exchange-signature"
)

// Outbound job-flow endpoints, relative to the configured base URL.
const (
	InviteLinkEndpoint = "/exchange/job/invite-link"
	JobResultsEndpoint = "/exchange/job/results"
)

// JobRequest is the marketplace-side submission envelope. The job address
// doubles as the project identifier; the manifest URI points at the full job
// description. A job request is immutable once persisted for a project.
type JobRequest struct {
	JobAddress  string `json:"job_address"`
	NetworkID   int    `json:"network_id"`
	JobManifest string `json:"job_manifest"`
}

// InviteLinkNotification tells the job flow where annotators can join a
// freshly bootstrapped project.
type InviteLinkNotification struct {
	NetworkID  int    `json:"network_id"`
	ExchangeID int    `json:"exchange_id"`
	JobAddress string `json:"job_address"`
	InviteLink string `json:"invite_link"`
}

// PayoutItem records which documents a single annotator completed, keyed by
// their wallet identifier.
type PayoutItem struct {
	Wallet  string   `json:"wallet"`
	TaskIDs []string `json:"task_ids"`
}

// Payouts is computed on demand from the finished-annotation records and is
// never persisted.
type Payouts []PayoutItem

// JobResultSubmission announces the exported results of a finished job.
// JobData is the URL of the uploaded result archive.
type JobResultSubmission struct {
	NetworkID  int     `json:"network_id"`
	ExchangeID int     `json:"exchange_id"`
	JobAddress string  `json:"job_address"`
	JobData    string  `json:"job_data"`
	Payouts    Payouts `json:"payouts"`
}
