package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/signintech/gopdf"
	"go.uber.org/zap"

	"careguardian/internal/emotion"
	"careguardian/internal/vitals"
)

// Narrator is the slice of the generative-AI collaborator used for the
// report narrative.
type Narrator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Service renders a downloadable health report from the current ledger
// and emotion trend. The AI narrative is best-effort: a generation
// failure degrades to a data-only report, it never aborts rendering.
type Service struct {
	narrator Narrator
	logger   *zap.Logger
}

func NewService(narrator Narrator, logger *zap.Logger) *Service {
	return &Service{
		narrator: narrator,
		logger:   logger,
	}
}

const narrativePromptFmt = `You are a health companion assistant. Summarize the following personal health data in 3-4 short, encouraging sentences for the user. Do not give medical diagnoses.
%s
Respond with plain text only.`

// Generate renders the PDF report and returns its bytes.
func (s *Service) Generate(ctx context.Context, userName string, samples []vitals.Sample, trend []vitals.TrendPoint, latest *emotion.Result) ([]byte, error) {
	narrative := ""
	if s.narrator != nil {
		text, err := s.narrator.GenerateText(ctx, fmt.Sprintf(narrativePromptFmt, summarize(samples, trend, latest)))
		if err != nil {
			s.logger.Warn("report narrative generation failed", zap.Error(err))
		} else {
			narrative = strings.TrimSpace(text)
		}
	}

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	// Try multiple common font paths for Alpine/Debian images.
	fontPaths := []string{
		"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	}

	var fontErr error
	fontLoaded := false
	for _, path := range fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, fmt.Errorf("failed to load font for PDF, ensure ttf-dejavu is installed: %w", fontErr)
	}

	if err := pdf.SetFont("DejaVu", "", 20); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "CareGuardian Health Report")
	pdf.Br(30)

	if err := pdf.SetFont("DejaVu", "", 12); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Date: %s", time.Now().Format("02.01.2006 15:04")))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("User: %s", userName))
	pdf.Br(25)

	if err := pdf.SetFont("DejaVu", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Recorded vitals:")
	pdf.Br(15)

	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		pdf.Cell(nil, "- No vitals recorded yet.")
		pdf.Br(15)
	}
	for _, sample := range samples {
		line := fmt.Sprintf("- %s: heart rate %d BPM, systolic BP %d mmHg%s",
			sample.SequenceLabel, sample.HeartRate, sample.SystolicBP, optionalMetrics(sample))
		writeWrapped(&pdf, line)
	}
	pdf.Br(10)

	if err := pdf.SetFont("DejaVu", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Emotional wellbeing:")
	pdf.Br(15)

	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	if latest != nil {
		writeWrapped(&pdf, fmt.Sprintf("- Latest risk level: %s (%s)", latest.Level, latest.Message))
	} else {
		pdf.Cell(nil, "- No mood analysis recorded yet.")
		pdf.Br(12)
	}
	writeWrapped(&pdf, fmt.Sprintf("- Trend points recorded: %d", len(trend)))
	pdf.Br(10)

	if narrative != "" {
		if err := pdf.SetFont("DejaVu", "", 14); err != nil {
			return nil, err
		}
		pdf.Cell(nil, "Summary:")
		pdf.Br(15)
		if err := pdf.SetFont("DejaVu", "", 11); err != nil {
			return nil, err
		}
		writeWrapped(&pdf, narrative)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func optionalMetrics(s vitals.Sample) string {
	var parts []string
	if s.BloodOxygen != nil {
		parts = append(parts, fmt.Sprintf("SpO2 %.1f%%", *s.BloodOxygen))
	}
	if s.Glucose != nil {
		parts = append(parts, fmt.Sprintf("glucose %.1f mmol/L", *s.Glucose))
	}
	if s.BodyTemperature != nil {
		parts = append(parts, fmt.Sprintf("temperature %.1f C", *s.BodyTemperature))
	}
	if len(parts) == 0 {
		return ""
	}
	return ", " + strings.Join(parts, ", ")
}

func writeWrapped(pdf *gopdf.GoPdf, text string) {
	lines, _ := pdf.SplitText(text, 500)
	for _, l := range lines {
		pdf.Cell(nil, l)
		pdf.Br(12)
	}
	pdf.Br(3)
}

// summarize builds the plain-text data block fed to the narrator.
func summarize(samples []vitals.Sample, trend []vitals.TrendPoint, latest *emotion.Result) string {
	var b strings.Builder
	b.WriteString("Vitals (oldest to newest):\n")
	if len(samples) == 0 {
		b.WriteString("none\n")
	}
	for _, s := range samples {
		fmt.Fprintf(&b, "%s: HR %d, BP %d%s\n", s.SequenceLabel, s.HeartRate, s.SystolicBP, optionalMetrics(s))
	}
	b.WriteString("Emotion trend levels (8 safe, 4 warning, 2 danger):\n")
	if len(trend) == 0 {
		b.WriteString("none\n")
	}
	for _, p := range trend {
		fmt.Fprintf(&b, "%s: %d\n", p.SequenceLabel, p.NumericLevel)
	}
	if latest != nil {
		fmt.Fprintf(&b, "Latest mood classification: %s (%s)\n", latest.Level, latest.Message)
	}
	return b.String()
}
