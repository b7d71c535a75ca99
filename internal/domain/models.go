// Package domain defines the persistence models for assessments,
// conversations and chat messages. These types are mapped with GORM and form
// the storage shape of the service; the canonical API shape of an assessment
// lives in package assessment.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Assessment is a stored questionnaire result. A row uses one of two
// encodings:
//
//   - legacy: AssessmentData holds the whole result as a nested JSON blob.
//     The flattened columns may mirror it but are not authoritative.
//   - current: AssessmentData is NULL and the flattened columns carry the
//     values. Array-valued fields are JSON text in their own columns.
//
// ID, UserID and CreatedAt never change after insert. UpdatedAt stays NULL
// until the first update.
type Assessment struct {
	ID             string  `gorm:"type:char(36);primaryKey"`
	UserID         string  `gorm:"type:varchar(64);not null;index:idx_user_assessments,priority:1"`
	AssessmentData *string `gorm:"type:text"`

	Age            *string `gorm:"type:varchar(32)"`
	Pattern        *string `gorm:"type:varchar(32)"`
	CycleLength    *string `gorm:"type:varchar(32)"`
	PeriodDuration *string `gorm:"type:varchar(32)"`
	FlowHeaviness  *string `gorm:"type:varchar(32)"`
	PainLevel      *string `gorm:"type:varchar(32)"`

	PhysicalSymptoms  *string `gorm:"type:text"`
	EmotionalSymptoms *string `gorm:"type:text"`
	OtherSymptoms     *string `gorm:"type:text"`
	Recommendations   *string `gorm:"type:text"`

	CreatedAt time.Time  `gorm:"not null;index:idx_user_assessments,priority:2"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime:false"`
}

// TableName returns the database table name for Assessment.
func (Assessment) TableName() string { return "assessments" }

// Conversation is an owner-scoped chat thread, optionally anchored to one
// assessment. AssessmentPattern and AssessmentSnapshot are copies taken when
// the link is made; later edits to the assessment do not flow back into them.
// An unlinked conversation stores "{}" as its snapshot. UpdatedAt moves
// forward on every message insert.
type Conversation struct {
	ID                 string         `json:"id"                           gorm:"type:char(36);primaryKey"`
	UserID             string         `json:"user_id"                      gorm:"type:varchar(64);not null;index:idx_user_conversations"`
	AssessmentID       *string        `json:"assessment_id"                gorm:"type:char(36);index"`
	AssessmentPattern  *string        `json:"assessment_pattern"           gorm:"type:varchar(32)"`
	AssessmentSnapshot datatypes.JSON `json:"assessment_snapshot,omitempty" gorm:"not null;default:'{}'"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single turn in a conversation.
//
// Fields:
//   - ID: UUIDv7, so ids sort in creation order.
//   - ConversationID: owning conversation (indexed with CreatedAt).
//   - Role: "user" or "assistant" (enforced by DB constraint).
//   - UserID: author, set only for user messages.
//   - ParentMessageID: the message that was latest when this one was
//     inserted; nil only for the first message of a thread.
//   - EditedAt: set when the content was replaced in place.
type Message struct {
	ID              string     `json:"id"                gorm:"type:char(36);primaryKey"`
	ConversationID  string     `json:"conversation_id"   gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	Role            string     `json:"role"              gorm:"type:varchar(16);not null;check:chk_chat_messages_role,role IN ('user','assistant')"`
	Content         string     `json:"content"           gorm:"type:text;not null"`
	UserID          *string    `json:"user_id,omitempty" gorm:"type:varchar(64)"`
	ParentMessageID *string    `json:"parent_message_id" gorm:"type:char(36);index"`
	CreatedAt       time.Time  `json:"created_at"        gorm:"index:idx_conversation_msgs,priority:2"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "chat_messages" }
