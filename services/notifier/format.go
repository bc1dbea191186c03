package notifier

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gridalert/models"
	"gridalert/services/users"
)

// Upstream site endpoints used in deep links.
const (
	siteBase         = "https://gpro.net"
	liveEndpoint     = "racescreenlive.asp"
	replayEndpoint   = "racescreen.asp"
	summaryEndpoint  = "RaceSummary.asp"
	analysisEndpoint = "RaceAnalysis.asp"
	qualifyEndpoint  = "Qualify.asp"
)

var groupRe = regexp.MustCompile(`^([MPAR])(\d{1,3})$`)

var groupNames = map[string]string{
	"M": "Master",
	"P": "Pro",
	"A": "Amateur",
	"R": "Rookie",
}

// groupPath converts a short group code into the site's group query value:
// E → "Elite", M3 → "Master%20-%203". Unknown codes yield an empty value so
// the link still lands on the group chooser.
func groupPath(group string) string {
	group = strings.ToUpper(strings.TrimSpace(group))
	if group == "E" {
		return "Elite"
	}
	m := groupRe.FindStringSubmatch(group)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s%%20-%%20%s", groupNames[m[1]], m[2])
}

// raceLink builds a group-scoped deep link for the given endpoint.
func raceLink(endpoint, lang string, group *string) string {
	base := fmt.Sprintf("%s/%s/%s?Group=", siteBase, lang, endpoint)
	if group == nil {
		return base
	}
	return base + groupPath(*group)
}

func langOrDefault(u models.User) string {
	if u.Lang == "" {
		return models.DefaultLang
	}
	return u.Lang
}

func formatUTC(t time.Time) string {
	return t.UTC().Format("02.01 15:04") + " UTC"
}

// buildMessage renders the payload for a job and recipient. onDemand payloads
// bypass the done-marker suppression and may carry the "already handled"
// acknowledgment instead of the normal reminder.
func (s *Service) buildMessage(job models.NotificationJob, u models.User, onDemand bool) Message {
	switch job.Kind {
	case models.JobQualiClosing, models.JobQualiOpens, models.JobCustom:
		return s.qualiMessage(job, u, onDemand)
	case models.JobRaceLive:
		return s.liveMessage(job.Event, u)
	case models.JobRaceReplay:
		return s.replayMessage(job.Event, u)
	case models.JobRaceResults:
		return s.resultsMessage(job.Event, u)
	}
	return Message{Text: fmt.Sprintf("Race %d: %s", job.Event.ID, job.Event.Track)}
}

// qualiMessage renders deadline reminders, the opens announcement, and custom
// reminders; they share the qualification link and the done/reset buttons.
func (s *Service) qualiMessage(job models.NotificationJob, u models.User, onDemand bool) Message {
	ev := job.Event
	lang := langOrDefault(u)
	qualiLink := fmt.Sprintf("%s/%s/%s", siteBase, lang, qualifyEndpoint)

	var title string
	switch job.Label {
	case models.NotifyOpens:
		title = "🆕 Qualification is open!"
	case models.Notify48h:
		title = "🔔 Qualification closes in 48h"
	case models.Notify24h:
		title = "⏰ Qualification closes in 24h"
	case models.Notify2h:
		title = "⚠️ Qualification closes in 2h"
	case models.Notify10min:
		title = "🚨 Qualification closes in 10min"
	default:
		// Custom slots and on-demand requests carry no fixed window; render
		// the actual time remaining.
		left := ev.HoursLeft
		if left == 0 {
			left = ev.QualiClose.Sub(s.now()).Seconds() / 3600
		}
		title = fmt.Sprintf("⏳ Qualification closes in %s", users.FormatOffset(&left))
	}

	alreadyDone := u.CompletedQuali != nil && *u.CompletedQuali == ev.ID
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "Race %d: %s\n", ev.ID, ev.Track)
	fmt.Fprintf(&b, "Deadline: %s\n", formatUTC(ev.QualiClose))
	fmt.Fprintf(&b, "Race start: %s\n\n", formatUTC(ev.Start))
	if onDemand && alreadyDone {
		fmt.Fprintf(&b, "You already marked this race as done.\n")
	}
	fmt.Fprintf(&b, "Qualify: %s", qualiLink)

	var buttons []Button
	if alreadyDone {
		buttons = append(buttons, Button{
			Text:     fmt.Sprintf("Re-enable race %d reminders", ev.ID),
			Callback: fmt.Sprintf("reset_%d", ev.ID),
		})
	} else {
		buttons = append(buttons, Button{
			Text:     "Qualification done ✅",
			Callback: fmt.Sprintf("done_%d", ev.ID),
		})
	}
	if ev.Weather != nil {
		buttons = append(buttons, Button{
			Text:     "Weather forecast 🌦",
			Callback: fmt.Sprintf("weather_%d", ev.ID),
		})
	}

	return Message{Text: b.String(), Buttons: buttons}
}

func (s *Service) liveMessage(ev models.Event, u models.User) Message {
	link := raceLink(liveEndpoint, langOrDefault(u), u.Group)
	text := fmt.Sprintf("🏁 Race %d is live!\n\n%s\nStart: %s\n\nWatch live: %s",
		ev.ID, ev.Track, formatUTC(ev.Start), link)
	return Message{Text: text}
}

func (s *Service) replayMessage(ev models.Event, u models.User) Message {
	link := raceLink(replayEndpoint, langOrDefault(u), u.Group)
	text := fmt.Sprintf("📺 Replay available for race %d\n\n%s\nRaced: %s\n\nReplay: %s",
		ev.ID, ev.Track, formatUTC(ev.Start), link)
	return Message{Text: text}
}

func (s *Service) resultsMessage(ev models.Event, u models.User) Message {
	lang := langOrDefault(u)
	analysis := fmt.Sprintf("%s/%s/%s", siteBase, lang, analysisEndpoint)
	summary := raceLink(summaryEndpoint, lang, u.Group)
	text := fmt.Sprintf("📊 Results are in for race %d\n\n%s\nRaced: %s\n\nAnalysis: %s\nSummary: %s",
		ev.ID, ev.Track, formatUTC(ev.Start), analysis, summary)
	return Message{Text: text}
}

// FormatWeather renders a race forecast as message text.
func FormatWeather(w *models.RaceWeather) string {
	if w == nil {
		return "No forecast available yet."
	}

	var b strings.Builder
	b.WriteString("🌦 Race weekend forecast\n\n")
	fmt.Fprintf(&b, "Practice / Q1: %s\n", w.Q1Weather)
	fmt.Fprintf(&b, "Temp %s°, humidity %s%%\n\n", w.Q1Temp, w.Q1Hum)
	fmt.Fprintf(&b, "Q2 / race start: %s\n", w.Q2Weather)
	fmt.Fprintf(&b, "Temp %s°, humidity %s%%\n", w.Q2Temp, w.Q2Hum)

	labels := []string{"Start – 0h30m", "0h30m – 1h00m", "1h00m – 1h30m", "1h30m – 2h00m"}
	for i, q := range w.Quarters {
		if i >= len(labels) {
			break
		}
		fmt.Fprintf(&b, "\n%s\n", labels[i])
		fmt.Fprintf(&b, "Temp %s, humidity %s\n", formatRange(q.TempLow, q.TempHigh, "°"), formatRange(q.HumLow, q.HumHigh, "%"))
		fmt.Fprintf(&b, "Rain probability %s\n", formatRange(q.RainLow, q.RainHigh, "%"))
	}
	return b.String()
}

// formatRange collapses equal bounds to a single value: "20°" or "18°-22°".
func formatRange(low, high, unit string) string {
	if low == high {
		return low + unit
	}
	return low + unit + "-" + high + unit
}
