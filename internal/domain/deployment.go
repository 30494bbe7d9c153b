package domain

// Vercel deployment statuses reported to the caller.
const (
	DeployStatusDeploying           = "deploying"
	DeployStatusManualSetupRequired = "manual_setup_required"
)

// DeploymentResult is the outcome of one successful orchestration run.
type DeploymentResult struct {
	GitHub GitHubResult `json:"github"`
	Vercel VercelResult `json:"vercel"`
}

// GitHubResult describes the repository that received the generated files.
type GitHubResult struct {
	URL   string `json:"url"`
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// VercelResult describes the deployment trigger. URL is nil when the
// trigger failed and the user has to connect the project by hand.
type VercelResult struct {
	URL    *string `json:"url"`
	Status string  `json:"status"`
}

// TriggerOutcome is the result of the best-effort deployment trigger. A
// non-nil Err never fails the deployment; it only downgrades the status.
type TriggerOutcome struct {
	URL string
	Err error
}

// OK reports whether the trigger produced a live deployment URL.
func (o TriggerOutcome) OK() bool {
	return o.Err == nil && o.URL != ""
}

// Result converts the outcome into the caller facing shape.
func (o TriggerOutcome) Result() VercelResult {
	if !o.OK() {
		return VercelResult{Status: DeployStatusManualSetupRequired}
	}
	url := o.URL
	return VercelResult{URL: &url, Status: DeployStatusDeploying}
}
