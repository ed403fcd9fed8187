package interview

import (
	"fmt"
	"strings"
	"text/template"
)

// scriptData feeds the interviewer's scripted lines.
type scriptData struct {
	Interviewer string
	Company     string
	Role        string
	Minutes     int
	Count       int
	Question    string
	Number      int
	Last        bool
}

var scriptTemplates = template.Must(template.New("script").Parse(`
{{- define "welcome" -}}
Hi, I'm {{.Interviewer}}, and I'll be your interviewer today for the {{.Role}} position at {{.Company}}. We have about {{.Minutes}} minutes together. How are you doing today?
{{- end -}}

{{- define "small_talk" -}}
Great to hear. Before we dive in, what got you interested in {{.Company}}?
{{- end -}}

{{- define "company_intro" -}}
Thanks for sharing. Let me tell you a little about the role. As a {{.Role}} at {{.Company}} you would work closely with the team on the challenges described in the job posting. I have {{.Count}} questions for you. Take your time with each answer.
{{- end -}}

{{- define "question" -}}
{{if eq .Number 1}}Let's get started. {{else if .Last}}Here is my last question. {{else}}Next question. {{end}}{{.Question}}
{{- end -}}

{{- define "wrap_up" -}}
That's all the questions I have. Thank you for your time today. I'm putting together your feedback now.
{{- end -}}

{{- define "completed" -}}
Your interview report is ready. Good luck with the real thing!
{{- end -}}
`))

func newScriptData(interviewer string, c Context, minutes, count int) scriptData {
	return scriptData{
		Interviewer: orDefault(interviewer, "Alex"),
		Company:     orDefault(strings.TrimSpace(c.Company), "our company"),
		Role:        orDefault(strings.TrimSpace(c.Role), "open"),
		Minutes:     minutes,
		Count:       count,
	}
}

// scriptLine renders the interviewer's line on entering phase. For
// [PhaseQuestions] use [questionLine].
func scriptLine(phase Phase, d scriptData) (string, error) {
	return render(phase.String(), d)
}

// questionLine renders the prompt for question index (0-based) of total.
func questionLine(d scriptData, text string, index, total int) (string, error) {
	d.Question = text
	d.Number = index + 1
	d.Last = index == total-1 && total > 1
	return render("question", d)
}

func render(name string, d scriptData) (string, error) {
	var b strings.Builder
	if err := scriptTemplates.ExecuteTemplate(&b, name, d); err != nil {
		return "", fmt.Errorf("interview: render %s line: %w", name, err)
	}
	return b.String(), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
