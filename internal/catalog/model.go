package catalog

import "time"

// Submission is one catalog row. Column names follow the spreadsheet export the
// catalog is imported from.
type Submission struct {
	SubmissionID      string     `gorm:"column:ncode;primaryKey;size:190;not null" json:"submission_id"`
	Title             string     `gorm:"column:title;type:text" json:"title"`
	Author            string     `gorm:"column:writer;size:255" json:"author"`
	Genre             string     `gorm:"column:genre;size:128;index:idx_submissions_genre" json:"genre"`
	KeywordText       string     `gorm:"column:keyword;type:text" json:"keyword_text"`
	StoryText         string     `gorm:"column:story;type:text" json:"story_text"`
	FirstPublishedAt  *time.Time `gorm:"column:general_firstup;index:idx_submissions_firstup" json:"first_published_at"`
	LastPublishedAt   *time.Time `gorm:"column:general_lastup" json:"last_published_at"`
	EpisodeCount      int64      `gorm:"column:general_all_no;not null;default:0" json:"episode_count"`
	CharLength        int64      `gorm:"column:length;not null;default:0" json:"char_length"`
	GlobalScore       int64      `gorm:"column:global_point;not null;default:0" json:"global_score"`
	DailyScore        int64      `gorm:"column:daily_point;not null;default:0" json:"daily_score"`
	WeeklyScore       int64      `gorm:"column:weekly_point;not null;default:0" json:"weekly_score"`
	MonthlyScore      int64      `gorm:"column:monthly_point;not null;default:0" json:"monthly_score"`
	QuarterScore      int64      `gorm:"column:quarter_point;not null;default:0" json:"quarter_score"`
	YearlyScore       int64      `gorm:"column:yearly_point;not null;default:0" json:"yearly_score"`
	AllScore          int64      `gorm:"column:all_point;not null;default:0" json:"all_score"`
	WeeklyUniqueUsers int64      `gorm:"column:weekly_unique;not null;default:0" json:"weekly_unique_users"`
	BookmarkCount     int64      `gorm:"column:fav_novel_cnt;not null;default:0" json:"bookmark_count"`
	ImpressionCount   int64      `gorm:"column:impression_cnt;not null;default:0" json:"impression_count"`
	ReviewCount       int64      `gorm:"column:review_cnt;not null;default:0" json:"review_count"`
	IllustrationCount int64      `gorm:"column:sasie_cnt;not null;default:0" json:"illustration_count"`
	DialogueRatio     float64    `gorm:"column:kaiwaritu;not null;default:0" json:"dialogue_ratio"`
	UpdatedAt         *time.Time `gorm:"column:novelupdated_at" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Submission) TableName() string {
	return "submissions"
}

// genreOrder is the display order of the known genre codes.
var genreOrder = []string{
	"0", "101", "102", "201", "202",
	"301", "302", "303", "304", "305", "306", "307",
	"401", "402", "403", "404",
	"9901", "9902", "9903", "9904", "9999", "9801",
}

// GenreLabel maps catalog genre codes onto their display labels.
var GenreLabel = map[string]string{
	"0":    "未選択〔未選択〕",
	"101":  "異世界〔恋愛〕",
	"102":  "現実世界〔恋愛〕",
	"201":  "ハイファンタジー〔ファンタジー〕",
	"202":  "ローファンタジー〔ファンタジー〕",
	"301":  "純文学〔文芸〕",
	"302":  "ヒューマンドラマ〔文芸〕",
	"303":  "歴史〔文芸〕",
	"304":  "推理〔文芸〕",
	"305":  "ホラー〔文芸〕",
	"306":  "アクション〔文芸〕",
	"307":  "コメディー〔文芸〕",
	"401":  "VRゲーム〔SF〕",
	"402":  "宇宙〔SF〕",
	"403":  "空想科学〔SF〕",
	"404":  "パニック〔SF〕",
	"9901": "童話〔その他〕",
	"9902": "詩〔その他〕",
	"9903": "エッセイ〔その他〕",
	"9904": "リプレイ〔その他〕",
	"9999": "その他〔その他〕",
	"9801": "ノンジャンル〔ノンジャンル〕",
}

// ResolveGenre returns the display label for a genre code, or the input unchanged
// when it is not a known code.
func ResolveGenre(code string) string {
	if label, ok := GenreLabel[code]; ok {
		return label
	}
	return code
}
