package records

// VoteRecord stores a single viewer upvote for an item.
type VoteRecord struct {
	ID              string `gorm:"column:id;primaryKey;size:64;not null"`
	ItemID          string `gorm:"column:item_id;size:190;not null;uniqueIndex:idx_vote_item_viewer,priority:1"`
	ViewerID        string `gorm:"column:viewer_id;size:190;not null;uniqueIndex:idx_vote_item_viewer,priority:2"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (VoteRecord) TableName() string {
	return string(TableVotes)
}

// CommentRecord stores a viewer comment for an item.
type CommentRecord struct {
	ID              string `gorm:"column:id;primaryKey;size:64;not null"`
	ItemID          string `gorm:"column:item_id;size:190;not null;index:idx_comment_item_created,priority:1"`
	ViewerID        string `gorm:"column:viewer_id;size:190;not null"`
	AuthorName      string `gorm:"column:author_name;size:320;not null;default:''"`
	Body            string `gorm:"column:body;type:text;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index:idx_comment_item_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (CommentRecord) TableName() string {
	return string(TableComments)
}
