package store

import (
	"time"

	"praxis/api/internal/money"
)

type User struct {
	ID             string         `json:"id"`
	DisplayName    string         `json:"displayName"`
	Email          string         `json:"email"`
	PasswordHash   string         `json:"-"`
	AccountType    string         `json:"accountType"`
	Phone          string         `json:"phone"`
	AvatarObject   string         `json:"avatarObject"`
	HourlyRate     money.Cents    `json:"hourlyRate"`
	IsActive       bool           `json:"isActive"`
	Preferences    map[string]any `json:"preferences"`
	TimerRunning   bool           `json:"-"`
	TimerStartedAt *time.Time     `json:"-"`
	TimerElapsedMs int64          `json:"-"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type Contact struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Company     string    `json:"company"`
	Address     string    `json:"address"`
	Kind        string    `json:"kind"` // client, opposing_party, witness, expert, other
	Notes       string    `json:"notes"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Matter struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	MatterNumber          string     `json:"matterNumber"`
	Description           string     `json:"description"`
	Status                string     `json:"status"` // open, closed, on_hold
	PracticeArea          string     `json:"practiceArea"`
	ClientID              string     `json:"clientId"`
	ResponsibleAttorneyID string     `json:"responsibleAttorneyId"`
	SharedAttorneyIDs     []string   `json:"sharedAttorneyIds"`
	OpenedAt              *time.Time `json:"openedAt"`
	ClosedAt              *time.Time `json:"closedAt"`
	CreatedBy             string     `json:"createdBy"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

type Task struct {
	ID          string     `json:"id"`
	MatterID    *string    `json:"matterId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"` // pending, in_progress, completed, cancelled
	Priority    string     `json:"priority"`
	AssigneeID  string     `json:"assigneeId"`
	DueAt       *time.Time `json:"dueAt"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type CostJournalEntry struct {
	ID              string      `json:"id"`
	MatterID        string      `json:"matterId"`
	UserID          string      `json:"userId"`
	EntryType       string      `json:"entryType"` // time, expense
	Description     string      `json:"description"`
	HoursHundredths int64       `json:"hoursHundredths"`
	Rate            money.Cents `json:"rate"`
	Amount          money.Cents `json:"amount"`
	IsBillable      bool        `json:"isBillable"`
	IsBilled        bool        `json:"isBilled"`
	EntryDate       time.Time   `json:"entryDate"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

type CostJournalApproval struct {
	ID         string     `json:"id"`
	EntryID    string     `json:"entryId"`
	ApproverID string     `json:"approverId"`
	Status     string     `json:"status"` // pending, approved, rejected
	Reason     string     `json:"reason"`
	ResolvedAt *time.Time `json:"resolvedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type Invoice struct {
	ID             string      `json:"id"`
	InvoiceNumber  string      `json:"invoiceNumber"`
	MatterID       string      `json:"matterId"`
	ClientID       string      `json:"clientId"`
	Status         string      `json:"status"` // draft, sent, partial, paid, void
	IssueDate      time.Time   `json:"issueDate"`
	DueDate        time.Time   `json:"dueDate"`
	Subtotal       money.Cents `json:"subtotal"`
	TaxRateBps     int64       `json:"taxRateBps"`
	TaxAmount      money.Cents `json:"taxAmount"`
	DiscountAmount money.Cents `json:"discountAmount"`
	TotalAmount    money.Cents `json:"totalAmount"`
	PaidAmount     money.Cents `json:"paidAmount"`
	Notes          string      `json:"notes"`
	CreatedBy      string      `json:"createdBy"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

type InvoiceItem struct {
	ID             string      `json:"id"`
	InvoiceID      string      `json:"invoiceId"`
	Description    string      `json:"description"`
	Quantity       int64       `json:"quantity"` // hundredths
	UnitPrice      money.Cents `json:"unitPrice"`
	Amount         money.Cents `json:"amount"`
	JournalEntryID *string     `json:"journalEntryId"`
	SortOrder      int         `json:"sortOrder"`
}

type Payment struct {
	ID          string      `json:"id"`
	InvoiceID   string      `json:"invoiceId"`
	Amount      money.Cents `json:"amount"`
	Method      string      `json:"method"` // cash, check, card, bank_transfer, other
	Reference   string      `json:"reference"`
	ProofObject string      `json:"proofObject"`
	PaidAt      time.Time   `json:"paidAt"`
	RecordedBy  string      `json:"recordedBy"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type Deposit struct {
	ID             string      `json:"id"`
	ClientID       string      `json:"clientId"`
	MatterID       string      `json:"matterId"`
	Amount         money.Cents `json:"amount"`
	Source         string      `json:"source"` // journal_approval, manual, refund
	JournalEntryID *string     `json:"journalEntryId"`
	Description    string      `json:"description"`
	RecordedBy     string      `json:"recordedBy"`
	CreatedAt      time.Time   `json:"createdAt"`
}

type Event struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Location      string    `json:"location"`
	StartsAt      time.Time `json:"startsAt"`
	EndsAt        time.Time `json:"endsAt"`
	AllDay        bool      `json:"allDay"`
	MatterID      *string   `json:"matterId"`
	OwnerID       string    `json:"ownerId"`
	GoogleEventID string    `json:"googleEventId,omitempty"`
	AttendeeIDs   []string  `json:"attendeeIds"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type ChatMessage struct {
	ID               string    `json:"id"`
	MatterID         string    `json:"matterId"`
	SenderID         string    `json:"senderId"`
	SenderName       string    `json:"senderName"`
	Body             string    `json:"body"`
	AttachmentObject string    `json:"attachmentObject,omitempty"`
	AttachmentName   string    `json:"attachmentName,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

type DirectMessage struct {
	ID               string     `json:"id"`
	SenderID         string     `json:"senderId"`
	RecipientID      string     `json:"recipientId"`
	SenderName       string     `json:"senderName"`
	Body             string     `json:"body"`
	AttachmentObject string     `json:"attachmentObject,omitempty"`
	AttachmentName   string     `json:"attachmentName,omitempty"`
	ReadAt           *time.Time `json:"readAt"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Conversation summarizes a DM thread for the inbox listing.
type Conversation struct {
	PeerID      string    `json:"peerId"`
	PeerName    string    `json:"peerName"`
	LastBody    string    `json:"lastBody"`
	LastAt      time.Time `json:"lastAt"`
	UnreadCount int       `json:"unreadCount"`
}

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Topic     string     `json:"topic"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	LinkPath  string     `json:"linkPath"`
	ReadAt    *time.Time `json:"readAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

// HierarchySnapshot is one saved role forest. Exactly one snapshot is active
// at a time; edits insert a new snapshot and flip the active flag.
type HierarchySnapshot struct {
	ID        string    `json:"id"`
	TreeJSON  string    `json:"-"`
	IsActive  bool      `json:"isActive"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

type GoogleCredential struct {
	UserID       string    `json:"userId"`
	RefreshToken string    `json:"-"`
	CalendarID   string    `json:"calendarId"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

type ActivityLogEntry struct {
	ID           int64     `json:"id"`
	ActorID      string    `json:"actorId"`
	ActorName    string    `json:"actorName"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	Detail       string    `json:"detail"`
	CreatedAt    time.Time `json:"createdAt"`
}
