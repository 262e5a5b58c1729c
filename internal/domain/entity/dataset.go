package entity

import (
	"time"
)

// DatasetType is derived from a dataset's items, never stored.
type DatasetType string

const (
	DatasetTypeEmpty       DatasetType = "empty"
	DatasetTypeImageMask   DatasetType = "image-mask"
	DatasetTypeVideoFrames DatasetType = "video-frames"
)

// Item is one persisted image+mask association. Items are immutable once
// written; corrections happen by appending new items or deleting the whole
// dataset.
type Item struct {
	ImagePath   string `json:"image_path"`
	MaskPath    string `json:"mask_path"`
	FrameIndex  *int   `json:"frame_index,omitempty"`
	UploadIndex int    `json:"upload_index"`
}

// Dataset is a named, user-owned collection of image-mask items.
// NextUploadIndex is strictly greater than the largest UploadIndex across
// Items and only ever increases.
type Dataset struct {
	UserID          string
	Name            string
	Tags            []string
	Items           []Item
	NextUploadIndex int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewDataset(userID, name string, tags []string) *Dataset {
	now := time.Now().UTC()
	return &Dataset{
		UserID:    userID,
		Name:      name,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Type derives the dataset kind from its contents: any frame-indexed item
// makes it a video-frames dataset.
func (d *Dataset) Type() DatasetType {
	if len(d.Items) == 0 {
		return DatasetTypeEmpty
	}
	for i := range d.Items {
		if d.Items[i].FrameIndex != nil {
			return DatasetTypeVideoFrames
		}
	}
	return DatasetTypeImageMask
}
