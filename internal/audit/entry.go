package audit

// Entry is one line in the hash-chained JSONL audit log. Two kinds are
// recorded: "execution" for every spawned process, "denial" for every
// permission refusal. All fields are flat structs so json.Marshal field
// order stays deterministic for reproducible hashing.
type Entry struct {
	Timestamp  string `json:"ts"`
	Kind       string `json:"kind"`
	AgentID    string `json:"agent_id"`
	Command    string `json:"command,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	Reason     string `json:"reason,omitempty"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	PrevHash   string `json:"prev_hash"`
}

// Entry kinds.
const (
	KindExecution = "execution"
	KindDenial    = "denial"
)
