package settings

// Defaults applied when an account is registered.
const (
	DefaultAutoLogoffTime    = 10
	DefaultAutoLogoffEnabled = false
	DefaultThemeMode         = "light"
)

// Settings holds per-user preferences.
type Settings struct {
	UserID            int64  `json:"user_id"`
	AutoLogoffTime    int    `json:"auto_logoff_time"`
	AutoLogoffEnabled bool   `json:"auto_logoff_enabled"`
	ThemeMode         string `json:"theme_mode"`
}

type updateRequest struct {
	AutoLogoffTime    *int    `json:"auto_logoff_time" validate:"omitnil,min=1,max=1440"`
	AutoLogoffEnabled *bool   `json:"auto_logoff_enabled"`
	ThemeMode         *string `json:"theme_mode" validate:"omitnil,oneof=light dark"`
}

func (req updateRequest) apply(s *Settings) {
	if req.AutoLogoffTime != nil {
		s.AutoLogoffTime = *req.AutoLogoffTime
	}
	if req.AutoLogoffEnabled != nil {
		s.AutoLogoffEnabled = *req.AutoLogoffEnabled
	}
	if req.ThemeMode != nil {
		s.ThemeMode = *req.ThemeMode
	}
}
