package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/fitsync/fitsync-worker/internal/service"
)

const (
	DefaultAPIURL = "https://apis.garmin.com/wellness-api/rest"
	TokenURL      = "https://diauth.garmin.com/di-oauth2-service/oauth/token"
)

type Client struct {
	clientID     string
	clientSecret string
	apiURL       string
	tokenURL     string
	httpClient   *http.Client
}

func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		apiURL:       DefaultAPIURL,
		tokenURL:     TokenURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// SetAPIURL overrides the API base URL (used by tests)
func (c *Client) SetAPIURL(u string) {
	c.apiURL = u
}

// dailySummaryResponse mirrors the wellness dailies wire format
type dailySummaryResponse struct {
	CalendarDate       string  `json:"calendarDate"`
	TotalSteps         int     `json:"totalSteps"`
	ActiveKilocalories float64 `json:"activeKilocalories"`
	RestingHeartRate   int     `json:"restingHeartRateInBeatsPerMinute"`
}

type sleepResponse struct {
	CalendarDate           string `json:"calendarDate"`
	StartTimeInSeconds     int64  `json:"sleepStartTimeInSeconds"`
	DurationInSeconds      int    `json:"durationInSeconds"`
	DeepSleepInSeconds     int    `json:"deepSleepDurationInSeconds"`
	LightSleepInSeconds    int    `json:"lightSleepDurationInSeconds"`
	RemSleepInSeconds      int    `json:"remSleepInSeconds"`
	AwakeDurationInSeconds int    `json:"awakeDurationInSeconds"`
}

type activityResponse struct {
	ActivityID         int64   `json:"activityId"`
	ActivityName       string  `json:"activityName"`
	ActivityType       string  `json:"activityType"`
	StartTimeInSeconds int64   `json:"startTimeInSeconds"`
	DurationInSeconds  int     `json:"durationInSeconds"`
	DistanceInMeters   float64 `json:"distanceInMeters"`
	ActiveKilocalories float64 `json:"activeKilocalories"`
}

type workoutResponse struct {
	WorkoutID     int64  `json:"workoutId"`
	WorkoutName   string `json:"workoutName"`
	Sport         string `json:"sport"`
	ScheduledDate string `json:"scheduledDate"`
}

// FetchHealthAndWellness fetches daily summaries and sleep for an inclusive
// date range. metricTypes filters which metric groups are requested; empty
// means all.
func (c *Client) FetchHealthAndWellness(ctx context.Context, accessToken, startDate, endDate string, metricTypes []string) (*service.WellnessData, error) {
	data := &service.WellnessData{}

	wantMetric := func(name string) bool {
		if len(metricTypes) == 0 {
			return true
		}
		for _, m := range metricTypes {
			if m == name {
				return true
			}
		}
		return false
	}

	if wantMetric("dailies") {
		var dailies []dailySummaryResponse
		if err := c.get(ctx, accessToken, "/dailies", startDate, endDate, &dailies); err != nil {
			return nil, fmt.Errorf("failed to fetch dailies: %w", err)
		}
		for _, d := range dailies {
			raw, _ := json.Marshal(d)
			data.Dailies = append(data.Dailies, service.DailySummary{
				CalendarDate:     d.CalendarDate,
				Steps:            d.TotalSteps,
				Calories:         d.ActiveKilocalories,
				RestingHeartRate: d.RestingHeartRate,
				RawPayload:       string(raw),
			})
		}
	}

	if wantMetric("sleep") {
		var sleeps []sleepResponse
		if err := c.get(ctx, accessToken, "/sleeps", startDate, endDate, &sleeps); err != nil {
			return nil, fmt.Errorf("failed to fetch sleeps: %w", err)
		}
		for _, s := range sleeps {
			raw, _ := json.Marshal(s)
			start := time.Unix(s.StartTimeInSeconds, 0).UTC()
			data.Sleep = append(data.Sleep, service.SleepRecord{
				CalendarDate:    s.CalendarDate,
				StartTime:       start,
				EndTime:         start.Add(time.Duration(s.DurationInSeconds) * time.Second),
				DurationMinutes: s.DurationInSeconds / 60,
				DeepMinutes:     s.DeepSleepInSeconds / 60,
				LightMinutes:    s.LightSleepInSeconds / 60,
				RemMinutes:      s.RemSleepInSeconds / 60,
				AwakeMinutes:    s.AwakeDurationInSeconds / 60,
				RawPayload:      string(raw),
			})
		}
	}

	return data, nil
}

// FetchActivitiesAndWorkouts fetches recorded activities and scheduled
// workouts for an inclusive date range
func (c *Client) FetchActivitiesAndWorkouts(ctx context.Context, accessToken, startDate, endDate string) (*service.ActivityData, error) {
	data := &service.ActivityData{}

	var activities []activityResponse
	if err := c.get(ctx, accessToken, "/activities", startDate, endDate, &activities); err != nil {
		return nil, fmt.Errorf("failed to fetch activities: %w", err)
	}
	for _, a := range activities {
		raw, _ := json.Marshal(a)
		start := time.Unix(a.StartTimeInSeconds, 0).UTC()
		data.Activities = append(data.Activities, service.Activity{
			ExternalID:      fmt.Sprintf("%d", a.ActivityID),
			Name:            a.ActivityName,
			ActivityType:    a.ActivityType,
			CalendarDate:    start.Format("2006-01-02"),
			StartTime:       start,
			DurationSeconds: a.DurationInSeconds,
			DistanceMeters:  a.DistanceInMeters,
			Calories:        a.ActiveKilocalories,
			RawPayload:      string(raw),
		})
	}

	var workouts []workoutResponse
	if err := c.get(ctx, accessToken, "/workouts", startDate, endDate, &workouts); err != nil {
		return nil, fmt.Errorf("failed to fetch workouts: %w", err)
	}
	for _, w := range workouts {
		raw, _ := json.Marshal(w)
		data.Workouts = append(data.Workouts, service.Workout{
			ExternalID:   fmt.Sprintf("%d", w.WorkoutID),
			Name:         w.WorkoutName,
			WorkoutType:  w.Sport,
			CalendarDate: w.ScheduledDate,
			RawPayload:   string(raw),
		})
	}

	return data, nil
}

// RefreshAccessToken exchanges the refresh token for a new access token
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*service.TokenRefreshResult, error) {
	conf := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: c.tokenURL,
		},
	}

	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	result := &service.TokenRefreshResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if result.RefreshToken == "" {
		// Garmin may not rotate the refresh token
		result.RefreshToken = refreshToken
	}
	return result, nil
}

// get performs one authorized date-ranged GET and decodes the JSON body
func (c *Client) get(ctx context.Context, accessToken, path, startDate, endDate string, out interface{}) error {
	query := url.Values{}
	query.Set("startDate", startDate)
	query.Set("endDate", endDate)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse API response: %w", err)
	}

	return nil
}
