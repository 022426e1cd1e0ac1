package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// VideoCounts are the engagement counters the counts endpoint reports.
type VideoCounts struct {
	LikeCount    int64 `json:"like_count"`
	DislikeCount int64 `json:"dislike_count"`
	ViewCount    int64 `json:"view_count"`
}

// VideoMedia is the direct media locator for a video.
type VideoMedia struct {
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
}

// VideoDetails is the subset of the details endpoint the pipeline reads.
type VideoDetails struct {
	VideoID       string   `json:"video_id"`
	VideoName     string   `json:"video_name"`
	Description   string   `json:"description"`
	ViewCount     int64    `json:"view_count"`
	Duration      string   `json:"duration"`
	ThumbnailURL  string   `json:"thumbnail_url"`
	ChannelID     string   `json:"channel_id"`
	DatePublished string   `json:"date_published"`
	Hashtags      []string `json:"hashtags"`
}

// ChannelDetails is the subset of the channel endpoint the pipeline reads.
type ChannelDetails struct {
	ChannelID     string `json:"channel_id"`
	ChannelName   string `json:"channel_name"`
	Description   string `json:"description"`
	VideoCount    int64  `json:"video_count"`
	ViewCount     int64  `json:"view_count"`
	SubscriberCnt string `json:"subscriber_count_display"`
	ThumbnailURL  string `json:"thumbnail_url"`
}

// GetVideoCounts fetches engagement counters for a single video.
func (e *Executor) GetVideoCounts(ctx context.Context, videoID string) (*VideoCounts, error) {
	raw, err := e.Execute(ctx, "beta/video/counts", map[string]string{"video_id": videoID}, true)
	if err != nil {
		return nil, err
	}

	var counts VideoCounts
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, fmt.Errorf("failed to decode counts for %s: %w", videoID, err)
	}

	return &counts, nil
}

// GetVideoMedia fetches the direct media locator for a single video.
func (e *Executor) GetVideoMedia(ctx context.Context, videoID string) (*VideoMedia, error) {
	raw, err := e.Execute(ctx, "beta/video/media", map[string]string{"video_id": videoID}, true)
	if err != nil {
		return nil, err
	}

	var media VideoMedia
	if err := json.Unmarshal(raw, &media); err != nil {
		return nil, fmt.Errorf("failed to decode media for %s: %w", videoID, err)
	}

	return &media, nil
}

// GetVideoDetails fetches the public details record for a single video.
// The details endpoint does not require a credential.
func (e *Executor) GetVideoDetails(ctx context.Context, videoID string) (*VideoDetails, error) {
	raw, err := e.Execute(ctx, "beta9/video", map[string]string{"video_id": videoID}, false)
	if err != nil {
		return nil, err
	}

	var details VideoDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, fmt.Errorf("failed to decode details for %s: %w", videoID, err)
	}

	return &details, nil
}

// GetChannelDetails fetches the details record for a single channel.
func (e *Executor) GetChannelDetails(ctx context.Context, channelID string) (*ChannelDetails, error) {
	raw, err := e.Execute(ctx, "beta/channel", map[string]string{"channel_id": channelID}, true)
	if err != nil {
		return nil, err
	}

	var details ChannelDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, fmt.Errorf("failed to decode channel %s: %w", channelID, err)
	}

	return &details, nil
}
