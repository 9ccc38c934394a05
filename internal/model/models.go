// Package model defines the data models for the Pumpshie game backend.
package model

import "time"

// AccessType describes which access tier a user currently holds.
type AccessType string

// Access tiers. Paid access is daily: it expires at paid_access_until and
// the reset job reverts it to free.
const (
	AccessFree        AccessType = "free"
	AccessTokenHolder AccessType = "token_holder"
	AccessPaid        AccessType = "paid"
)

// PlayReason is the closed set of reasons produced by the access policy
// chain. Every caller (bot replies, API responses) derives its wording from
// these values; nothing else produces reason strings.
type PlayReason string

const (
	ReasonPaidAccess     PlayReason = "paid_access"
	ReasonTokenHolder    PlayReason = "token_holder"
	ReasonFreePlay       PlayReason = "free_play"
	ReasonTweetAvailable PlayReason = "tweet_available"
	ReasonNoPlaysLeft    PlayReason = "no_plays_left"
)

// PlayDecision is the outcome of the access policy chain.
type PlayDecision struct {
	CanPlay bool
	Reason  PlayReason
}

// User represents a player account keyed by Telegram ID.
// MCPoints is the per-day counter zeroed by the daily reset; TotalMCPoints
// accumulates for the lifetime of the account.
type User struct {
	TgID               int64      `db:"tg_id"`
	Username           string     `db:"username"`
	DisplayName        string     `db:"display_name"`
	AccessType         AccessType `db:"access_type"`
	FreePlaysRemaining int        `db:"free_plays_remaining"`
	PaidAccessUntil    *time.Time `db:"paid_access_until"`
	TweetVerifiedToday bool       `db:"tweet_verified_today"`
	WalletAddress      *string    `db:"wallet_address"`
	WalletVerifiedAt   *time.Time `db:"wallet_verified_at"`
	CurrentGlobalDayID *int64     `db:"current_global_day_id"`
	ProjectID          *int64     `db:"project_id"`
	HighestScore       int64      `db:"highest_score"`
	MCPoints           int64      `db:"mc_points"`
	TotalMCPoints      int64      `db:"total_mc_points"`
	TotalPlayTime      int64      `db:"total_play_time"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// HasPaidAccess reports whether the user's paid window covers the given time.
func (u *User) HasPaidAccess(now time.Time) bool {
	return u.PaidAccessUntil != nil && now.Before(*u.PaidAccessUntil)
}

// GlobalDay is the single active 24-hour competitive epoch, aligned to
// America/New_York midnights. At most one row is active at a time; the
// partial unique index on is_active enforces it at the storage level.
type GlobalDay struct {
	ID               int64      `db:"id"`
	StartTime        time.Time  `db:"start_time"`
	EndTime          time.Time  `db:"end_time"`
	IsActive         bool       `db:"is_active"`
	HighestScore     int64      `db:"highest_score"`
	HighestScoreUser *int64     `db:"highest_score_user"`
	RewardAmount     int64      `db:"reward_amount"`
	RewardClaimed    bool       `db:"reward_claimed"`
	RewardPaidAt     *time.Time `db:"reward_paid_at"`
	RewardTxHash     *string    `db:"reward_tx_hash"`
	TotalGamesPlayed int64      `db:"total_games_played"`
	TotalPoints      int64      `db:"total_points"`
	CreatedAt        time.Time  `db:"created_at"`
}

// SessionStatus is the lifecycle state of a game session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// GameSession is one attempt to play. The row is append-only after
// completion; Complete transitions status exactly once.
type GameSession struct {
	ID               int64         `db:"id"`
	UserID           int64         `db:"user_id"`
	ProjectID        *int64        `db:"project_id"`
	GlobalDayID      int64         `db:"global_day_id"`
	Status           SessionStatus `db:"status"`
	CurrentScore     int64         `db:"current_score"`
	HighScore        int64         `db:"high_score"`
	ObstaclesPassed  int           `db:"obstacles_passed"`
	StartedAt        time.Time     `db:"started_at"`
	EndedAt          *time.Time    `db:"ended_at"`
	PlayTime         int64         `db:"play_time"`
	AccessType       AccessType    `db:"access_type"`
	MCPointsEarned   int64         `db:"mc_points_earned"`
	IsHighScore      bool          `db:"is_high_score"`
	IsDailyHighScore bool          `db:"is_daily_high_score"`
	CreatedAt        time.Time     `db:"created_at"`
}

// Project is a team users can join, carrying daily and lifetime point
// aggregates for the project leaderboard.
type Project struct {
	ID                 int64     `db:"id"`
	Name               string    `db:"name"`
	ImageURL           *string   `db:"image_url"`
	TokenAddress       string    `db:"token_address"`
	TotalPoints        int64     `db:"total_points"`
	DailyPoints        int64     `db:"daily_points"`
	PlayerCount        int64     `db:"player_count"`
	TotalGamesPlayed   int64     `db:"total_games_played"`
	DailyHighScore     int64     `db:"daily_high_score"`
	DailyHighScoreUser *int64    `db:"daily_high_score_user"`
	IsActive           bool      `db:"is_active"`
	CreatedAt          time.Time `db:"created_at"`
}

// WalletLink is a pending deposit-based wallet linking record. A user submits
// a candidate address, then proves ownership by sending an exact token amount
// from it. Records older than ten minutes are never matched.
type WalletLink struct {
	WalletAddress string    `db:"wallet_address"`
	UserID        int64     `db:"user_id"`
	Confirmed     bool      `db:"confirmed"`
	CreatedAt     time.Time `db:"created_at"`
}

// WalletNonce is the ephemeral challenge issued by prepare-verification.
// Single use, five-minute TTL enforced at consume time.
type WalletNonce struct {
	WalletAddress string    `db:"wallet_address"`
	Nonce         string    `db:"nonce"`
	IssuedAt      time.Time `db:"issued_at"`
}

// DailyRank is one row of the current day's leaderboard.
type DailyRank struct {
	UserID      int64  `db:"user_id"`
	DisplayName string `db:"display_name"`
	Score       int64  `db:"score"`
	PlayTime    int64  `db:"play_time"`
}

// ProjectRank is one row of the current day's project leaderboard.
type ProjectRank struct {
	ProjectID   int64  `db:"project_id"`
	Name        string `db:"name"`
	DailyPoints int64  `db:"daily_points"`
	PlayerCount int64  `db:"player_count"`
}
