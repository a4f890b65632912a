package repository

import (
	"context"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// Repository interfaces for forum entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
// Getters return (nil, nil) when the row does not exist.

type MemberRepo interface {
	// CreateMember inserts the member together with its main character and
	// returns both ids.
	CreateMember(ctx context.Context, m *models.Member) (memberID, characterID int64, err error)
	GetMember(ctx context.Context, id int64) (*models.Member, error)
	GetMemberByLogin(ctx context.Context, login string) (*models.Member, error)
	FindMembersByName(ctx context.Context, names []string) ([]models.Member, error)
	MemberNameTaken(ctx context.Context, name string, exceptID int64) (bool, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	UpdateMember(ctx context.Context, m *models.Member) error
	UpdateLastLogin(ctx context.Context, id, at int64) error
	MergeMembers(ctx context.Context, sourceID, destID int64) error
	DecayWarnings(ctx context.Context, amount int, quietSince int64) (int64, error)
}

type GroupRepo interface {
	GetGroup(ctx context.Context, id int64) (*models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	AdditionalGroups(ctx context.Context, memberID int64) ([]int64, error)
	AddAdditionalGroup(ctx context.Context, memberID, groupID int64) error
	LeaveGroup(ctx context.Context, memberID, groupID int64) error
	SetPrimaryGroup(ctx context.Context, memberID, groupID int64) error
	GroupModerators(ctx context.Context, groupID int64) ([]int64, error)
	MembersInGroup(ctx context.Context, groupID int64) ([]int64, error)
	CreateGroupRequest(ctx context.Context, req *models.GroupRequest) (int64, error)
	OpenGroupRequest(ctx context.Context, memberID, groupID int64) (*models.GroupRequest, error)
	GetGroupRequest(ctx context.Context, id int64) (*models.GroupRequest, error)
	ListGroupRequests(ctx context.Context, memberID int64, status int) ([]models.GroupRequest, error)
	ResolveGroupRequest(ctx context.Context, id int64, status int, actorID int64, reason string, at int64) (bool, error)
}

type PermissionRepo interface {
	GroupPermissions(ctx context.Context, groupIDs []int64) ([]models.Permission, error)
	MembersWithPermission(ctx context.Context, permission string) ([]int64, error)
}

type CharacterRepo interface {
	CreateCharacter(ctx context.Context, c *models.Character) (int64, error)
	GetCharacter(ctx context.Context, id int64) (*models.Character, error)
	ListCharacters(ctx context.Context, memberID int64) ([]models.Character, error)
	MainCharacter(ctx context.Context, memberID int64) (*models.Character, error)
	CharacterNameTaken(ctx context.Context, name string, exceptID int64) (bool, error)
	UpdateCharacter(ctx context.Context, c *models.Character) error
	DeleteCharacter(ctx context.Context, id int64) error
	SetCurrentCharacter(ctx context.Context, memberID, characterID int64) error
	MoveCharacter(ctx context.Context, characterID, toMemberID int64) error
}

type SheetRepo interface {
	CreateSheetVersion(ctx context.Context, v *models.SheetVersion) (int64, error)
	LatestSheetVersion(ctx context.Context, characterID int64) (*models.SheetVersion, error)
	GetSheetVersion(ctx context.Context, id int64) (*models.SheetVersion, error)
	ListSheetVersions(ctx context.Context, characterID int64) ([]models.SheetVersion, error)
	SetSheetState(ctx context.Context, versionID int64, state int) error
	ApproveSheetVersion(ctx context.Context, v *models.SheetVersion, approverID, at int64) error
	AddSheetComment(ctx context.Context, c *models.SheetComment) (int64, error)
	ListSheetComments(ctx context.Context, characterID int64) ([]models.SheetComment, error)
}

type WarningRepo interface {
	// AddWarning records the log entry and sets the member's level atomically.
	AddWarning(ctx context.Context, w *models.Warning, newLevel int) (int64, error)
	WarningPointsSince(ctx context.Context, issuerID, recipientID, since int64) (int, error)
	ListWarnings(ctx context.Context, recipientID int64, limit, offset int) ([]models.Warning, error)
	CountWarnings(ctx context.Context, recipientID int64) (int, error)
}

type AlertRepo interface {
	CreateAlert(ctx context.Context, a *models.Alert) (int64, error)
	DeliverAlert(ctx context.Context, a *models.Alert, m *models.MailItem) error
	ListAlerts(ctx context.Context, memberID int64, limit, offset int) ([]models.Alert, error)
	CountAlerts(ctx context.Context, memberID int64, unreadOnly bool) (int, error)
	MarkAlertsRead(ctx context.Context, memberID int64, alertIDs []int64) (int64, error)
	DeleteAlert(ctx context.Context, memberID, alertID int64) (bool, error)
	// AlertPrefs returns forum defaults overlaid with the member's own rows.
	AlertPrefs(ctx context.Context, memberID int64) (map[string]int, error)
	SetAlertPrefs(ctx context.Context, memberID int64, prefs map[string]int) error
}

type ContactRepo interface {
	ListContacts(ctx context.Context, memberID int64, kind string) ([]models.MemberRef, error)
	AddContacts(ctx context.Context, memberID int64, kind string, contactIDs []int64) error
	RemoveContact(ctx context.Context, memberID int64, kind string, contactID int64) (bool, error)
	IgnoredBoards(ctx context.Context, memberID int64) ([]int64, error)
	SetIgnoredBoards(ctx context.Context, memberID int64, boardIDs []int64) error
	WatchedTopics(ctx context.Context, memberID int64) ([]models.Topic, error)
	WatchedBoards(ctx context.Context, memberID int64) ([]models.Board, error)
	SetTopicWatch(ctx context.Context, memberID, topicID int64, on bool) error
	SetBoardWatch(ctx context.Context, memberID, boardID int64, on bool) error
	TopicWatchers(ctx context.Context, topicID, boardID int64) ([]int64, error)
}

type BoardRepo interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListBoards(ctx context.Context) ([]models.Board, error)
	GetBoard(ctx context.Context, id int64) (*models.Board, error)
	ListTopics(ctx context.Context, boardID int64, vis models.Visibility, limit, offset int) ([]models.Topic, error)
	CountTopics(ctx context.Context, boardID int64, vis models.Visibility) (int, error)
	GetTopic(ctx context.Context, id int64) (*models.Topic, error)
	ListMessages(ctx context.Context, topicID int64, vis models.Visibility, limit, offset int) ([]models.Message, error)
	CountMessages(ctx context.Context, topicID int64, vis models.Visibility) (int, error)
	MessagesByMember(ctx context.Context, memberID, characterID int64, boardIDs []int64, limit, offset int) ([]models.Message, error)
	CountMessagesByMember(ctx context.Context, memberID, characterID int64, boardIDs []int64) (int, error)
	// CreatePost stores a message, opening a new topic when msg.TopicID is 0,
	// and bumps post counters.
	CreatePost(ctx context.Context, msg *models.Message) (topicID, msgID int64, err error)
}

type SettingsRepo interface {
	AllSettings(ctx context.Context) (map[string]string, error)
	SetSettings(ctx context.Context, values map[string]string) error
}

type CustomFieldRepo interface {
	ListCustomFields(ctx context.Context, activeOnly bool) ([]models.CustomField, error)
	GetCustomField(ctx context.Context, id int64) (*models.CustomField, error)
	CreateCustomField(ctx context.Context, f *models.CustomField) (int64, error)
	DeleteCustomField(ctx context.Context, id int64) error
	FieldValues(ctx context.Context, memberID int64) (map[int64]string, error)
	SetFieldValues(ctx context.Context, memberID int64, values map[int64]string) error
}

type SubscriptionRepo interface {
	ListSubscriptions(ctx context.Context, activeOnly bool) ([]models.Subscription, error)
	GetSubscription(ctx context.Context, id int64) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, s *models.Subscription) (int64, error)
	MemberSubscriptions(ctx context.Context, memberID int64) ([]models.SubscriptionLog, error)
	GetSubscriptionLog(ctx context.Context, id int64) (*models.SubscriptionLog, error)
	CreateSubscriptionLog(ctx context.Context, l *models.SubscriptionLog) (int64, error)
	// ActivateSubscription marks the entry active and grants the plan's group.
	ActivateSubscription(ctx context.Context, logID, start, end int64, vendorRef string) error
	// EndSubscription marks the entry inactive and revokes the plan's group.
	EndSubscription(ctx context.Context, logID int64) error
	ExpiredSubscriptions(ctx context.Context, now int64) ([]models.SubscriptionLog, error)
	ExpiringSubscriptions(ctx context.Context, before int64) ([]models.SubscriptionLog, error)
	MarkReminderSent(ctx context.Context, logID int64) error
}

type ActionLogRepo interface {
	LogAction(ctx context.Context, a *models.ActionLog) (int64, error)
	ListActions(ctx context.Context, logType int, affectedID int64, limit, offset int) ([]models.ActionLog, error)
	CountActions(ctx context.Context, logType int, affectedID int64) (int, error)
}

type MailRepo interface {
	QueueMail(ctx context.Context, m *models.MailItem) (int64, error)
	PendingMail(ctx context.Context, limit int) ([]models.MailItem, error)
	MarkMailSent(ctx context.Context, id int64) error
}

// Store aggregates every repository; the SQLite implementation satisfies it.
type Store interface {
	MemberRepo
	GroupRepo
	PermissionRepo
	CharacterRepo
	SheetRepo
	WarningRepo
	AlertRepo
	ContactRepo
	BoardRepo
	SettingsRepo
	CustomFieldRepo
	SubscriptionRepo
	ActionLogRepo
	MailRepo
}
