package story

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusDraft        = "draft"
	StatusGenerating   = "generating"
	StatusTextReady    = "text_ready"
	StatusIllustrating = "illustrating"
	StatusComplete     = "complete"
	StatusFailed       = "failed"
)

const (
	ImagePending     = "pending"
	ImageGenerated   = "generated"
	ImagePlaceholder = "placeholder"
	ImageFailed      = "failed"
)

type Story struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Title            string         `gorm:"column:title;not null" json:"title"`
	ChildName        string         `gorm:"column:child_name;not null" json:"child_name"`
	ChildAge         int            `gorm:"column:child_age;not null" json:"child_age"`
	ChildGender      string         `gorm:"column:child_gender" json:"child_gender,omitempty"`
	ChildDescription string         `gorm:"column:child_description" json:"child_description,omitempty"`
	PhotoKey         string         `gorm:"column:photo_key" json:"photo_key,omitempty"`
	PhotoURL         string         `gorm:"column:photo_url" json:"photo_url,omitempty"`
	ThemeID          string         `gorm:"column:theme_id;not null;index" json:"theme_id"`
	Theme            datatypes.JSON `gorm:"column:theme;type:jsonb" json:"theme"`
	CustomElements   string         `gorm:"column:custom_elements" json:"custom_elements,omitempty"`
	Status           string         `gorm:"column:status;not null;index" json:"status"`
	TextGenerated    bool           `gorm:"column:text_generated;not null;default:false" json:"text_generated"`
	ImagesGenerated  bool           `gorm:"column:images_generated;not null;default:false" json:"images_generated"`
	PDFKey           string         `gorm:"column:pdf_key" json:"-"`
	PDFURL           string         `gorm:"column:pdf_url" json:"pdf_url,omitempty"`
	Error            string         `gorm:"column:error" json:"error,omitempty"`
	Pages            []*StoryPage   `gorm:"foreignKey:StoryID;constraint:OnDelete:CASCADE" json:"pages,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Story) TableName() string { return "story" }

func (s *Story) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type StoryPage struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StoryID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_story_page_story_index,priority:1" json:"story_id"`
	Index       int       `gorm:"column:page_index;not null;uniqueIndex:idx_story_page_story_index,priority:2" json:"index"`
	Text        string    `gorm:"column:text;not null" json:"text"`
	Scene       string    `gorm:"column:scene" json:"scene,omitempty"`
	ImagePrompt string    `gorm:"column:image_prompt" json:"image_prompt"`
	ImageURL    string    `gorm:"column:image_url" json:"image_url,omitempty"`
	ImageKey    string    `gorm:"column:image_key" json:"-"`
	ImageStatus string    `gorm:"column:image_status;not null;default:'pending'" json:"image_status"`
	Provider    string    `gorm:"column:provider" json:"provider,omitempty"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (StoryPage) TableName() string { return "story_page" }

func (p *StoryPage) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
