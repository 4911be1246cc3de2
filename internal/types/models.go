package types

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID      MessageID `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
)

// rank orders statuses so transitions can be checked for monotonicity.
func (s TaskStatus) rank() int {
	switch s {
	case TaskRunning:
		return 1
	case TaskCompleted:
		return 2
	default:
		return 0
	}
}

// Advances reports whether moving from s to next goes strictly forward.
func (s TaskStatus) Advances(next TaskStatus) bool {
	return next.rank() > s.rank()
}

type Task struct {
	ID          TaskID     `json:"id"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
}

type Tier string

const (
	TierFast     Tier = "fast"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// User is the caller identity as resolved by a front end.
type User struct {
	ID            UserID `json:"id"`
	Authenticated bool   `json:"authenticated"`
	Subscriber    bool   `json:"subscriber"`
}

// Attachment is a file supplied alongside a query.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"-"`
}

// UploadResult is the parse collaborator's response for an attachment.
type UploadResult struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type QueryStart struct {
	Query     string `json:"query"`
	Model     string `json:"model"`
	ModelTier Tier   `json:"model_tier"`
}

type QueryComplete struct {
	TurnID         TurnID `json:"turn_id,omitempty"`
	UserID         UserID `json:"user_id,omitempty"`
	Query          string `json:"query"`
	Model          string `json:"model"`
	ModelTier      Tier   `json:"model_tier"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	Success        bool   `json:"success"`
}
