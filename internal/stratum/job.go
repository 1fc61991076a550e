package stratum

// JobDescriptor is the wire shape of a job handed to a miner, whether as
// the `job` field of a login response or the params of a `job`
// notification (spec §6).
type JobDescriptor struct {
	JobID  string `json:"job_id"`
	Blob   string `json:"blob"`
	Target string `json:"target"`
}

// LoginParams is the params object of a `login` request.
type LoginParams struct {
	Login string `json:"login"`
	Pass  string `json:"pass"`
}

// LoginResult is the result object of a successful `login` response.
type LoginResult struct {
	ID     string        `json:"id"`
	Job    JobDescriptor `json:"job"`
	Status string        `json:"status"`
}

// GetJobParams is the params object of a `getjob` request.
type GetJobParams struct {
	ID string `json:"id"`
}

// SubmitParams is the params object of a `submit` request.
type SubmitParams struct {
	ID    string `json:"id"`
	JobID string `json:"job_id"`
	Nonce string `json:"nonce"`
}

// KeepalivedParams is the params object of a `keepalived` request.
type KeepalivedParams struct {
	ID string `json:"id"`
}
