package handlers

import (
	"golang.org/x/text/message"

	domain "github.com/optima-bank/loyalty/internal/domain"
)

type userPayload struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

type profilePayload struct {
	Email           string `json:"email"`
	FullName        string `json:"full_name"`
	Points          int64  `json:"points"`
	FormattedPoints string `json:"formatted_points"`
	Tier            string `json:"tier"`
	MemberSince     string `json:"member_since,omitempty"`
}

type sessionPayload struct {
	State   string          `json:"state"`
	User    *userPayload    `json:"user,omitempty"`
	Profile *profilePayload `json:"profile,omitempty"`
}

func buildSessionPayload(session domain.Session, printer *message.Printer) sessionPayload {
	payload := sessionPayload{State: string(session.State())}
	if session.User != nil {
		payload.User = &userPayload{
			ID:       session.User.ID,
			Email:    session.User.Email,
			FullName: session.User.FullName,
		}
	}
	if session.Profile != nil {
		payload.Profile = &profilePayload{
			Email:           session.Profile.Email,
			FullName:        session.Profile.FullName,
			Points:          session.Profile.Points,
			FormattedPoints: formatPoints(printer, session.Profile.Points),
			Tier:            session.Profile.Tier,
			MemberSince:     formatTime(session.Profile.CreatedAt),
		}
	}
	return payload
}

type voucherPayload struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Category        string `json:"category,omitempty"`
	Points          int64  `json:"points"`
	FormattedPoints string `json:"formatted_points"`
	ImageURL        string `json:"image_url,omitempty"`
}

func buildVoucherPayload(v domain.Voucher, printer *message.Printer) voucherPayload {
	return voucherPayload{
		ID:              v.ID,
		Title:           v.Title,
		Description:     v.Description,
		Category:        v.Category,
		Points:          v.Points,
		FormattedPoints: formatPoints(printer, v.Points),
		ImageURL:        v.ImageURL,
	}
}

type notificationPayload struct {
	ID        string `json:"id"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Icon      string `json:"icon"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

func buildNotificationPayload(n domain.Notification) notificationPayload {
	return notificationPayload{
		ID:        n.ID,
		Severity:  string(n.Severity),
		Message:   n.Message,
		Icon:      n.Icon,
		CreatedAt: formatTime(n.CreatedAt),
		ExpiresAt: formatTime(n.ExpiresAt),
	}
}
