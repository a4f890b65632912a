package models

// Group types, as stored in membergroups.group_type.
const (
	GroupPrivate     = 0
	GroupProtected   = 1
	GroupRequestable = 2
	GroupFree        = 3
)

// Well-known group ids.
const (
	GroupGuests        int64 = -1
	GroupRegular       int64 = 0
	GroupAdministrator int64 = 1
)

// Group request statuses.
const (
	RequestOpen     = 0
	RequestApproved = 1
	RequestRejected = 2
)

// Character sheet approval states.
const (
	SheetDraft    = 0
	SheetPending  = 1
	SheetApproved = 2
	SheetRejected = 3
)

// log_actions.id_log values.
const (
	LogModeration = 1
	LogAdmin      = 2
	LogProfile    = 3
)

// Contact list kinds stored in member_contacts.contact_type.
const (
	ContactBuddy  = "buddy"
	ContactIgnore = "ignore"
)

// Alert preference bits.
const (
	AlertSite  = 1
	AlertEmail = 2
)

// Member is a forum account.
type Member struct {
	ID               int64  `db:"id_member" json:"id"`
	Name             string `db:"member_name" json:"member_name"`
	RealName         string `db:"real_name" json:"real_name"`
	Email            string `db:"email_address" json:"email,omitempty"`
	PasswordHash     string `db:"passwd" json:"-"`
	PrimaryGroup     int64  `db:"id_group" json:"primary_group"`
	Registered       int64  `db:"date_registered" json:"date_registered"`
	Posts            int    `db:"posts" json:"posts"`
	Warning          int    `db:"warning" json:"warning,omitempty"`
	PersonalText     string `db:"personal_text" json:"personal_text"`
	Signature        string `db:"signature" json:"signature"`
	Avatar           string `db:"avatar" json:"avatar"`
	Language         string `db:"lngfile" json:"language"`
	Timezone         string `db:"timezone" json:"timezone"`
	TimeFormat       string `db:"time_format" json:"time_format"`
	Activated        bool   `db:"is_activated" json:"activated"`
	CurrentCharacter int64  `db:"current_character" json:"current_character"`
	LastLogin        int64  `db:"last_login" json:"last_login"`
}

// DisplayName returns the real name, falling back to the login name.
func (m *Member) DisplayName() string {
	if m.RealName != "" {
		return m.RealName
	}
	return m.Name
}

// MemberRef is the minimal member shape used in lists.
type MemberRef struct {
	ID   int64  `db:"id_member" json:"id"`
	Name string `db:"real_name" json:"name"`
}

// Group is a membergroup.
type Group struct {
	ID          int64  `db:"id_group" json:"id"`
	Name        string `db:"group_name" json:"name"`
	Description string `db:"description" json:"description"`
	Type        int    `db:"group_type" json:"type"`
	Hidden      bool   `db:"hidden" json:"hidden"`
	IsCharacter bool   `db:"is_character" json:"is_character"`
	OnlineColor string `db:"online_color" json:"online_color"`
}

// GroupRequest is a pending or resolved request to join a requestable group.
type GroupRequest struct {
	ID         int64  `db:"id_request" json:"id"`
	MemberID   int64  `db:"id_member" json:"member_id"`
	MemberName string `db:"member_name" json:"member_name"`
	GroupID    int64  `db:"id_group" json:"group_id"`
	GroupName  string `db:"group_name" json:"group_name"`
	Applied    int64  `db:"time_applied" json:"time_applied"`
	Reason     string `db:"reason" json:"reason"`
	Status     int    `db:"status" json:"status"`
	ActedBy    int64  `db:"id_member_acted" json:"acted_by"`
	ActedAt    int64  `db:"time_acted" json:"time_acted"`
	ActReason  string `db:"act_reason" json:"act_reason"`
}

// Permission is one permissions row.
type Permission struct {
	GroupID int64  `db:"id_group" json:"group_id"`
	Name    string `db:"permission" json:"permission"`
	Allow   bool   `db:"add_deny" json:"allow"`
}

// Character is an in-universe persona owned by a member.
type Character struct {
	ID         int64  `db:"id_character" json:"id"`
	MemberID   int64  `db:"id_member" json:"member_id"`
	Name       string `db:"character_name" json:"name"`
	Avatar     string `db:"avatar" json:"avatar"`
	Signature  string `db:"signature" json:"signature"`
	Age        string `db:"age" json:"age"`
	Posts      int    `db:"posts" json:"posts"`
	Created    int64  `db:"date_created" json:"date_created"`
	LastActive int64  `db:"last_active" json:"last_active"`
	IsMain     bool   `db:"is_main" json:"is_main"`
	Retired    bool   `db:"retired" json:"retired"`
	SheetID    int64  `db:"char_sheet" json:"char_sheet"`
}

// SheetVersion is one revision of a character sheet.
type SheetVersion struct {
	ID          int64  `db:"id_version" json:"id"`
	CharacterID int64  `db:"id_character" json:"character_id"`
	MemberID    int64  `db:"id_member" json:"member_id"`
	Text        string `db:"sheet_text" json:"text"`
	Created     int64  `db:"created_time" json:"created_time"`
	State       int    `db:"approval_state" json:"state"`
	ApproverID  int64  `db:"id_approver" json:"approver_id"`
	ApprovedAt  int64  `db:"approved_time" json:"approved_time"`
}

// SheetComment is a staff or owner remark on a character sheet.
type SheetComment struct {
	ID          int64  `db:"id_comment" json:"id"`
	CharacterID int64  `db:"id_character" json:"character_id"`
	AuthorID    int64  `db:"id_author" json:"author_id"`
	AuthorName  string `db:"author_name" json:"author_name"`
	Posted      int64  `db:"time_posted" json:"time_posted"`
	Body        string `db:"sheet_comment" json:"comment"`
}

// Warning is one entry of a member's warning log.
type Warning struct {
	ID          int64  `db:"id_comment" json:"id"`
	IssuerID    int64  `db:"id_member" json:"issuer_id"`
	IssuerName  string `db:"member_name" json:"issuer_name"`
	RecipientID int64  `db:"id_recipient" json:"recipient_id"`
	Time        int64  `db:"log_time" json:"time"`
	Counter     int    `db:"counter" json:"counter"`
	Reason      string `db:"body" json:"reason"`
}

// Alert is an on-site notification.
type Alert struct {
	ID          int64  `db:"id_alert" json:"id"`
	Time        int64  `db:"alert_time" json:"time"`
	MemberID    int64  `db:"id_member" json:"member_id"`
	StartedBy   int64  `db:"id_member_started" json:"started_by"`
	ContentType string `db:"content_type" json:"content_type"`
	ContentID   int64  `db:"content_id" json:"content_id"`
	Action      string `db:"content_action" json:"action"`
	IsRead      bool   `db:"is_read" json:"is_read"`
	Extra       string `db:"extra" json:"extra"`
}

// Category groups boards on the index.
type Category struct {
	ID    int64  `db:"id_cat" json:"id"`
	Name  string `db:"cat_name" json:"name"`
	Order int    `db:"cat_order" json:"order"`
}

// Board is a message board; MemberGroups is the CSV access list.
type Board struct {
	ID           int64  `db:"id_board" json:"id"`
	CategoryID   int64  `db:"id_cat" json:"category_id"`
	Name         string `db:"board_name" json:"name"`
	Description  string `db:"description" json:"description"`
	Order        int    `db:"board_order" json:"order"`
	MemberGroups string `db:"member_groups" json:"-"`
	InCharacter  bool   `db:"in_character" json:"in_character"`
	NumTopics    int    `db:"num_topics" json:"num_topics"`
	NumPosts     int    `db:"num_posts" json:"num_posts"`
}

// Topic is a thread of messages.
type Topic struct {
	ID           int64  `db:"id_topic" json:"id"`
	BoardID      int64  `db:"id_board" json:"board_id"`
	Subject      string `db:"subject" json:"subject"`
	Sticky       bool   `db:"is_sticky" json:"sticky"`
	FirstMsg     int64  `db:"id_first_msg" json:"first_msg"`
	LastMsg      int64  `db:"id_last_msg" json:"last_msg"`
	StarterID    int64  `db:"id_member_started" json:"started_by"`
	Replies      int    `db:"num_replies" json:"replies"`
	LastPostTime int64  `db:"last_post_time" json:"last_post_time"`
	Approved     bool   `db:"approved" json:"approved"`
}

// Visibility selects the posts awaiting approval a listing includes: all of
// them for moderators, otherwise only the member's own.
type Visibility struct {
	Moderator bool
	MemberID  int64
}

// Message is one post.
type Message struct {
	ID          int64  `db:"id_msg" json:"id"`
	TopicID     int64  `db:"id_topic" json:"topic_id"`
	BoardID     int64  `db:"id_board" json:"board_id"`
	MemberID    int64  `db:"id_member" json:"member_id"`
	CharacterID int64  `db:"id_character" json:"character_id"`
	PosterName  string `db:"poster_name" json:"poster_name"`
	Time        int64  `db:"poster_time" json:"time"`
	Subject     string `db:"subject" json:"subject"`
	Body        string `db:"body" json:"body"`
	Approved    bool   `db:"approved" json:"approved"`
}

// CustomField is an administrator-defined profile field.
type CustomField struct {
	ID          int64  `db:"id_field" json:"id"`
	ColName     string `db:"col_name" json:"col_name"`
	Name        string `db:"field_name" json:"name"`
	Description string `db:"field_desc" json:"description"`
	Type        string `db:"field_type" json:"type"`
	Length      int    `db:"field_length" json:"length"`
	Options     string `db:"field_options" json:"options"`
	Mask        string `db:"mask" json:"mask"`
	Private     int    `db:"private" json:"private"`
	Active      bool   `db:"active" json:"active"`
	Order       int    `db:"field_order" json:"order"`
	Default     string `db:"default_value" json:"default"`
}

// Custom field visibility, stored in custom_fields.private.
const (
	FieldPublic    = 0
	FieldOwnerOnly = 1
	FieldAdminOnly = 2
)

// Subscription is a paid subscription plan.
type Subscription struct {
	ID          int64  `db:"id_subscribe" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	CostCents   int64  `db:"cost_cents" json:"cost_cents"`
	Currency    string `db:"currency" json:"currency"`
	LengthDays  int    `db:"length_days" json:"length_days"`
	GroupID     int64  `db:"id_group" json:"group_id"`
	Active      bool   `db:"active" json:"active"`
	Repeatable  bool   `db:"repeatable" json:"repeatable"`
}

// Subscription log statuses.
const (
	SubscriptionInactive = 0
	SubscriptionActive   = 1
)

// SubscriptionLog tracks one member's subscription to a plan.
type SubscriptionLog struct {
	ID              int64  `db:"id_sublog" json:"id"`
	SubscriptionID  int64  `db:"id_subscribe" json:"subscription_id"`
	MemberID        int64  `db:"id_member" json:"member_id"`
	Start           int64  `db:"start_time" json:"start_time"`
	End             int64  `db:"end_time" json:"end_time"`
	Status          int    `db:"status" json:"status"`
	PaymentsPending int    `db:"payments_pending" json:"payments_pending"`
	Gateway         string `db:"gateway" json:"gateway"`
	VendorRef       string `db:"vendor_ref" json:"vendor_ref"`
	ReminderSent    bool   `db:"reminder_sent" json:"reminder_sent"`
}

// ActionLog is one row of the moderation, admin or profile log.
type ActionLog struct {
	ID         int64  `db:"id_action" json:"id"`
	Log        int    `db:"id_log" json:"log"`
	Time       int64  `db:"log_time" json:"time"`
	MemberID   int64  `db:"id_member" json:"member_id"`
	IP         string `db:"ip" json:"ip"`
	Action     string `db:"action" json:"action"`
	AffectedID int64  `db:"id_member_affected" json:"affected_id"`
	Extra      string `db:"extra" json:"extra"`
}

// MailItem is a queued outgoing email.
type MailItem struct {
	ID        int64  `db:"id_mail" json:"id"`
	Time      int64  `db:"time_sent" json:"time"`
	Recipient string `db:"recipient" json:"recipient"`
	Subject   string `db:"subject" json:"subject"`
	Body      string `db:"body" json:"body"`
	Priority  int    `db:"priority" json:"priority"`
	Sent      bool   `db:"sent" json:"sent"`
}
