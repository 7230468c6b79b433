package models

// QuestionPaper is one extracted exam paper. ContentHash is the dedup key.
type QuestionPaper struct {
	Base
	Title          *string    `json:"title,omitempty"  gorm:"type:varchar(255)"`
	Subject        string     `json:"subject"          gorm:"type:varchar(100)"`
	GradeLevel     string     `json:"grade_level"      gorm:"type:varchar(50)"`
	Language       string     `json:"language"         gorm:"type:varchar(50)"`
	ImageRef       string     `json:"image_ref"        gorm:"type:varchar(512)"`
	ContentHash    string     `json:"content_hash"     gorm:"type:char(64);uniqueIndex;not null"`
	TotalQuestions int        `json:"total_questions"`
	UsageCount     int        `json:"usage_count"      gorm:"not null;default:0"`
	UploadedBy     *string    `json:"uploaded_by,omitempty" gorm:"type:char(36);index"`
	Questions      []Question `json:"questions,omitempty"   gorm:"foreignKey:PaperID;constraint:OnDelete:CASCADE"`
}

func (QuestionPaper) TableName() string { return "question_papers" }

// Question belongs to exactly one QuestionPaper. Ordinal keeps extraction order.
type Question struct {
	Base
	PaperID  string    `json:"paper_id"            gorm:"type:char(36);index;not null"`
	Ordinal  int       `json:"ordinal"`
	Number   string    `json:"question_number"     gorm:"type:varchar(32);not null"`
	Text     string    `json:"question_text"       gorm:"type:text"`
	MaxScore *float64  `json:"max_score,omitempty"`
	Topics   []string  `json:"topics,omitempty"    gorm:"type:text;serializer:json"`
	Location *Position `json:"position,omitempty"  gorm:"type:text;serializer:json"`
}

func (Question) TableName() string { return "questions" }

// MaxScoresKnown reports whether every question carries a max score.
func (p *QuestionPaper) MaxScoresKnown() bool {
	if len(p.Questions) == 0 {
		return false
	}
	for _, q := range p.Questions {
		if q.MaxScore == nil {
			return false
		}
	}
	return true
}
