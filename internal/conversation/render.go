package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creatorpay/tracker/internal/chat"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/money"
	"github.com/creatorpay/tracker/internal/reports"
	"github.com/creatorpay/tracker/internal/session"
)

const (
	titleInvalidURL     = "❌ Invalid URL"
	titleDegraded       = "⚠️ Short Link Not Resolved"
	titleDuplicate      = "⚠️ Duplicate - Already Tracked"
	titleInvalidAmount  = "❌ Invalid Amount"
	titleInProgress     = "⏳ Submission In Progress"
	titleExpired        = "⏰ Session Expired"
	titleConfirmTimeout = "⏰ Confirmation Timed Out"
	titleCancelled      = "🚫 Submission Cancelled"
	titleFailed         = "❌ Submission Failed"
	titleConfirm        = "📋 Confirm Payment"
	titleRecorded       = "✅ Payment Recorded"
	titleNotFound       = "❓ Video Not Found"
	titlePrivate        = "🔒 This bot is private"
	titleUsage          = "❌ Usage"
	titleBusy           = "⏳ Bot Busy"
	titleDetails        = "🎬 Video Details"
	titleUpdated        = "✏️ Payment Updated"
	titleDeleteConfirm  = "🗑️ Delete This Payment?"
	titleDeleted        = "🗑️ Payment Deleted"
	titleDeleteAborted  = "🚫 Delete Cancelled"
	titleDeleteTimeout  = "⏰ Delete Timed Out"
	titleRecent         = "🕒 Recent Payments"
	titleSearch         = "🔍 Search Results"
	titleStats          = "📊 Payment Stats"
	titleExportQueued   = "📁 Export Queued"
	titleHelp           = "📖 Payment Tracker Commands"
	titleError          = "❌ Error"
)

const dateLayout = "2006-01-02"

func embedMessage(title, description string, color int) chat.Message {
	return chat.Message{Embed: &chat.Embed{Title: title, Description: description, Color: color}}
}

func errorMessage(title, description string) chat.Message {
	return embedMessage(title, description, chat.ColorError)
}

func textMessage(content string) chat.Message {
	return chat.Message{Content: content}
}

func addPaymentFields(e *chat.Embed, p *models.Payment) {
	e.AddField("Creator", p.CreatorName, true).
		AddField("Amount", money.Format(p.Amount, p.Currency), true).
		AddField("Date", p.SubmittedAt.UTC().Format(dateLayout), true)
	if p.Notes != "" {
		e.AddField("Notes", p.Notes, false)
	}
	e.AddField("Video ID", "`"+models.DisplayVideoID(p.VideoID)+"`", false)
	if p.URL != "" {
		e.AddField("URL", p.URL, false)
	}
}

func paymentMessage(title string, color int, p *models.Payment) chat.Message {
	msg := embedMessage(title, "", color)
	addPaymentFields(msg.Embed, p)
	return msg
}

func duplicateMessage(p *models.Payment) chat.Message {
	msg := paymentMessage(titleDuplicate, chat.ColorWarning, p)
	msg.Embed.Description = "This video has already been paid. Nothing was saved."
	return msg
}

func summaryMessage(s *session.Session, timeoutSec int) chat.Message {
	msg := embedMessage(titleConfirm, "Please check the details below.", chat.ColorPending)
	notes := s.Notes
	if notes == "" {
		notes = "None"
	}
	msg.Embed.AddField("Creator", s.CreatorName, true).
		AddField("Amount", money.Format(s.Amount, s.Currency), true).
		AddField("Notes", notes, false).
		AddField("Video ID", "`"+models.DisplayVideoID(s.Video.CanonicalID)+"`", false).
		AddField("URL", s.Video.SourceURL, false)
	msg.Embed.Footer = fmt.Sprintf("React %s to confirm or %s to cancel (%ds)", chat.EmojiConfirm, chat.EmojiReject, timeoutSec)
	return msg
}

func promptCreator(s *session.Session) chat.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "🎬 Video `%s` detected.\n", models.DisplayVideoID(s.Video.CanonicalID))
	if s.Video.Username != "" {
		fmt.Fprintf(&b, "Link handle: @%s\n", s.Video.Username)
	}
	b.WriteString("👤 Who is the creator? (type `cancel` to stop)")
	return textMessage(b.String())
}

func promptAmount(s *session.Session, defaultCurrency string) chat.Message {
	return textMessage(fmt.Sprintf("💰 How much was paid to **%s**? (e.g. `50`, `$50`, `50 EUR`; default %s)", s.CreatorName, defaultCurrency))
}

func promptNotes() chat.Message {
	return textMessage("📝 Any notes? Type `skip` for none.")
}

// renderError turns an engine outcome into a chat message.
func renderError(err error) chat.Message {
	var ce *Error
	if !errors.As(err, &ce) {
		return errorMessage(titleError, "Something went wrong. Please try again.")
	}
	switch ce.Code {
	case CodeNotATikTokURL:
		return errorMessage(titleInvalidURL, ce.Reason)
	case CodeResolutionDegraded:
		return embedMessage(titleDegraded, ce.Reason, chat.ColorWarning)
	case CodeInvalidAmountFormat:
		return errorMessage(titleInvalidAmount, ce.Reason+"\nEnter the amount again, or type `cancel`.")
	case CodeSessionInProgress:
		return embedMessage(titleInProgress, ce.Reason, chat.ColorWarning)
	case CodeSessionExpired:
		return embedMessage(titleExpired, ce.Reason, chat.ColorWarning)
	case CodeSessionCancelled:
		return embedMessage(titleCancelled, ce.Reason, chat.ColorInfo)
	case CodeStoreUnavailable:
		return errorMessage(titleFailed, ce.Reason)
	}
	return errorMessage(titleError, ce.Reason)
}

func listLines(list []models.Payment) string {
	var b strings.Builder
	for _, p := range list {
		fmt.Fprintf(&b, "`%s` · **%s** · %s · %s\n",
			models.DisplayVideoID(p.VideoID), p.CreatorName, money.Format(p.Amount, p.Currency), p.SubmittedAt.UTC().Format(dateLayout))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func listMessage(title string, list []models.Payment) chat.Message {
	if len(list) == 0 {
		return embedMessage(title, "No payments found.", chat.ColorInfo)
	}
	return embedMessage(title, listLines(list), chat.ColorInfo)
}

func totalsText(totals []reports.CurrencyTotal) string {
	if len(totals) == 0 {
		return "None"
	}
	parts := make([]string, 0, len(totals))
	for _, t := range totals {
		parts = append(parts, fmt.Sprintf("%s (%d)", money.Format(t.Total, t.Currency), t.Count))
	}
	return strings.Join(parts, "\n")
}

func statsMessage(st reports.Stats) chat.Message {
	msg := embedMessage(titleStats, "", chat.ColorInfo)
	msg.Embed.AddField("📹 Payments", fmt.Sprint(st.Count), true).
		AddField("👥 Creators", fmt.Sprint(st.UniqueCreators), true).
		AddField("💰 Total Paid", totalsText(st.Totals), false)
	if len(st.Totals) > 0 {
		avgs := make([]string, 0, len(st.Totals))
		for _, t := range st.Totals {
			avgs = append(avgs, money.Format(t.Average(), t.Currency))
		}
		msg.Embed.AddField("Average", strings.Join(avgs, "\n"), true)
	}
	if st.Highest != nil {
		msg.Embed.AddField("Highest", fmt.Sprintf("%s (%s)", money.Format(st.Highest.Amount, st.Highest.Currency), st.Highest.CreatorName), true)
	}
	if st.TopCreatorWeek != nil {
		msg.Embed.AddField("🏆 Top Creator This Week",
			fmt.Sprintf("**%s** · %d payments · %s", st.TopCreatorWeek.Creator, st.TopCreatorWeek.Count, strings.ReplaceAll(totalsText(st.TopCreatorWeek.Totals), "\n", ", ")), false)
	}
	return msg
}

func monthlyMessage(m reports.Month) chat.Message {
	msg := embedMessage("📅 Monthly Report: "+m.Month, "", chat.ColorInfo)
	if m.Count == 0 {
		msg.Embed.Description = "No payments this month."
		return msg
	}
	var b strings.Builder
	for _, c := range m.Creators {
		fmt.Fprintf(&b, "**%s** · %d · %s\n", c.Creator, c.Count, strings.ReplaceAll(totalsText(c.Totals), "\n", ", "))
	}
	msg.Embed.Description = strings.TrimSuffix(b.String(), "\n")
	msg.Embed.AddField("Payments", fmt.Sprint(m.Count), true).
		AddField("Total", totalsText(m.Totals), true)
	return msg
}

func creatorMessage(c reports.CreatorSummary) chat.Message {
	msg := embedMessage("👤 "+c.Creator, listLines(c.Payments), chat.ColorInfo)
	msg.Embed.AddField("Payments", fmt.Sprint(c.Count), true).
		AddField("Total", totalsText(c.Totals), true).
		AddField("Last Paid", c.Latest.UTC().Format(dateLayout), true)
	return msg
}

func helpMessage(prefix string) chat.Message {
	lines := []string{
		"`%ssubmit <url>` Record a payment for a TikTok video",
		"`%scancel` Cancel your current submission",
		"`%slookup <id|url>` Show a recorded payment",
		"`%srecent [n]` Last n payments (default 10, max 20)",
		"`%screator <name>` A creator's payments and totals",
		"`%ssearch <text>` Search ids, creators and notes",
		"`%sstats` Overall totals",
		"`%smonthly [YYYY-MM]` Per-creator totals for a month",
		"`%sexport` Export all payments as CSV",
		"`%sedit <id> <creator|amount|notes|url> <value>` Change a payment",
		"`%sdelete <id>` Delete a payment",
	}
	for i, l := range lines {
		lines[i] = fmt.Sprintf(l, prefix)
	}
	return embedMessage(titleHelp, strings.Join(lines, "\n"), chat.ColorInfo)
}
