package models

const (
	GradingModeSingle = "single"
	GradingModeDual   = "dual"
)

// Grading is one immutable grading run over one or more answer-sheet pages.
type Grading struct {
	Base
	UserID            *string       `json:"user_id,omitempty"  gorm:"type:char(36);index"`
	PaperID           *string       `json:"paper_id,omitempty" gorm:"type:char(36);index"`
	ImageRef          string        `json:"image_ref"          gorm:"type:varchar(512)"`
	TotalPages        int           `json:"total_pages"`
	Subject           string        `json:"subject"            gorm:"type:varchar(100)"`
	Language          string        `json:"language"           gorm:"type:varchar(50)"`
	GradeLevel        string        `json:"grade_level"        gorm:"type:varchar(50)"`
	TotalScore        string        `json:"total_score"        gorm:"type:varchar(32)"`
	Feedback          string        `json:"feedback"           gorm:"type:text"`
	Mode              string        `json:"mode"               gorm:"type:varchar(16);not null"`
	TotalQuestions    int           `json:"total_questions"`
	AnsweredQuestions int           `json:"answered_questions"`
	Warnings          []string      `json:"warnings,omitempty" gorm:"type:text;serializer:json"`
	// Annotations belong to the single sheet of a page-less grading.
	Annotations       []Annotation  `json:"annotations,omitempty" gorm:"type:longtext;serializer:json"`
	Pages             []GradingPage `json:"pages,omitempty"    gorm:"foreignKey:GradingID;constraint:OnDelete:CASCADE"`
	Answers           []Answer      `json:"answers,omitempty"  gorm:"foreignKey:GradingID;constraint:OnDelete:CASCADE"`
}

func (Grading) TableName() string { return "gradings" }

// GradingPage is one physical answer-sheet page of a multi-page grading.
type GradingPage struct {
	Base
	GradingID   string       `json:"grading_id"  gorm:"type:char(36);index;not null"`
	PageNumber  int          `json:"page_number" gorm:"not null"`
	ImageRef    string       `json:"image_ref"   gorm:"type:varchar(512)"`
	Annotations []Annotation `json:"annotations" gorm:"type:longtext;serializer:json"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
}

func (GradingPage) TableName() string { return "grading_pages" }

// Answer is one graded question instance. A nil StudentAnswer means unanswered.
// Matched is false for extras that have no question on the paper. Duplicate
// marks a second answer to an already answered question; it is not scored.
type Answer struct {
	Base
	GradingID      string    `json:"grading_id"          gorm:"type:char(36);index;not null"`
	PageID         *string   `json:"page_id,omitempty"   gorm:"type:char(36);index"`
	PageNumber     int       `json:"page_number,omitempty"`
	Ordinal        int       `json:"ordinal"`
	QuestionNumber string    `json:"question_number"     gorm:"type:varchar(32)"`
	StudentAnswer  *string   `json:"student_answer"      gorm:"type:text"`
	IsCorrect      bool      `json:"is_correct"`
	Score          string    `json:"score"               gorm:"type:varchar(32)"`
	Remarks        string    `json:"remarks"             gorm:"type:text"`
	Confidence     float64   `json:"confidence"`
	Matched        bool      `json:"matched"`
	Duplicate      bool      `json:"duplicate,omitempty"`
	Location       *Position `json:"position,omitempty"  gorm:"type:text;serializer:json"`
}

func (Answer) TableName() string { return "answers" }

// Answered reports whether the student wrote anything for this question.
func (a *Answer) Answered() bool {
	return a.StudentAnswer != nil && *a.StudentAnswer != ""
}

const (
	AnnotationCheck  = "check"
	AnnotationCross  = "cross"
	AnnotationScore  = "score"
	AnnotationRemark = "remark"
)

// Annotation is one overlay element drawn on an answer-sheet image.
type Annotation struct {
	Type           string  `json:"type"`
	QuestionNumber string  `json:"question_number,omitempty"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Text           string  `json:"text,omitempty"`
}
