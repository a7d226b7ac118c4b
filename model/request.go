package model

import "time"

type Status string

const (
	StatusSubmitted           Status = "SUBMITTED"
	StatusProcessing          Status = "PROCESSING"
	StatusFailed              Status = "FAILED"
	StatusPendingConfirmation Status = "PENDING_CONFIRMATION"
	StatusApproved            Status = "APPROVED"
	StatusPublished           Status = "PUBLISHED"
)

// transitions is the legal status graph. FAILED and PUBLISHED are terminal.
var transitions = map[Status][]Status{
	StatusSubmitted:           {StatusProcessing},
	StatusProcessing:          {StatusFailed, StatusPendingConfirmation},
	StatusPendingConfirmation: {StatusApproved, StatusFailed},
	StatusApproved:            {StatusPublished, StatusFailed},
}

// ValidTransition reports whether a request may move from one status to
// another. Every mutation of a request's status goes through this check.
func ValidTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusPublished
}

// PublishRequest is one candidate game version awaiting verification.
// Created at submission time; only the pipeline advances its status.
type PublishRequest struct {
	RequestID      string    `json:"requestId"`
	GameID         string    `json:"gameId"`
	AssetID        string    `json:"assetId"`
	SourceInfoHash string    `json:"sourceInfoHash"`
	RepoOwner      string    `json:"repoOwner"`
	RepoName       string    `json:"repoName"`
	CommitHash     string    `json:"commitHash"`
	Requester      string    `json:"requester"`
	Status         Status    `json:"status"`
	Created        time.Time `json:"created"`
}

// PublishMessage is the queue payload that triggers a pipeline run.
type PublishMessage struct {
	RequestID      string `json:"requestId"`
	GameID         string `json:"gameId"`
	AssetID        string `json:"assetId,omitempty"`
	UserID         string `json:"userId,omitempty"`
	SourceInfoHash string `json:"sourceInfoHash,omitempty"`
}

// GameVersion is the record of a successfully verified submission. Written
// once when the pipeline succeeds; PublishedAt is set when the owner confirms.
type GameVersion struct {
	VersionID     string     `json:"versionId"`
	GameID        string     `json:"gameId"`
	SquishVersion string     `json:"squishVersion"`
	RequestID     string     `json:"requestId"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
	PublishedBy   string     `json:"publishedBy"`
	SourceAssetID string     `json:"sourceAssetId"`
}
