package report

import (
	"strings"

	v1 "github.com/f9-o/sensorhub/api/v1"
)

// Fragments substituted for nodes that did not return a usable report.
const (
	FragmentOffline    = `<div class="node-error offline">Sensor Offline</div>`
	FragmentAuthFailed = `<div class="node-error auth">Login Failed</div>`
	FragmentUnknown    = `<div class="node-error unknown">Unknown Error</div>`
)

// Placeholder tokens. Every token appears exactly once in its template.
const (
	tokTitle       = "{{ Title }}"
	tokHeading     = "{{ Heading }}"
	tokStyle       = "{{ Style }}"
	tokGeneratedAt = "{{ GeneratedAt }}"
	tokNodeCount   = "{{ NodeCount }}"
	tokFailedCount = "{{ FailedCount }}"
	tokBody        = "{{ Body }}"

	tokStatus       = "{{ Status }}"
	tokDisplayName  = "{{ DisplayName }}"
	tokAddress      = "{{ Address }}"
	tokResponseTime = "{{ ResponseTime }}"
	tokPayload      = "{{ Payload }}"

	tokKind     = "{{ Kind }}"
	tokSection  = "{{ SectionHeading }}"
	tokSections = "{{ Sections }}"
)

const sharedStyle = `body{font-family:sans-serif;margin:1.5em;background:#f7f7f7;color:#222}
h1{font-size:1.4em}h2{font-size:1.1em;margin:0 0 .4em}
.meta{color:#666;font-size:.9em}
.node{background:#fff;border:1px solid #ddd;border-radius:4px;margin:.8em 0;padding:.8em}
.address,.rt{color:#777;font-size:.85em;font-weight:normal}
.node-error{font-weight:bold;color:#b00020}`

const documentTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ Title }}</title>
<style>
{{ Style }}
</style>
</head>
<body>
<h1>{{ Heading }}</h1>
<p class="meta">Generated {{ GeneratedAt }} &middot; {{ NodeCount }} nodes &middot; {{ FailedCount }} unavailable</p>
{{ Body }}
</body>
</html>
`

const nodeTemplate = `<section class="node node-{{ Status }}">
<h2>{{ DisplayName }} <span class="address">{{ Address }}</span> <span class="rt">{{ ResponseTime }}</span></h2>
{{ Payload }}
</section>
`

const sectionTemplate = `<section class="report report-{{ Kind }}">
<h1>{{ SectionHeading }}</h1>
{{ Sections }}
</section>
`

// Titles per report kind.
var titles = map[v1.ReportKind]string{
	v1.ReportSystem:   "Sensor System Report",
	v1.ReportConfig:   "Sensor Configuration Report",
	v1.ReportReadings: "Sensor Readings Report",
	v1.ReportLatency:  "Sensor Latency Report",
	v1.ReportCombo:    "Combination Report",
}

// Title returns the human title for kind.
func Title(kind v1.ReportKind) string {
	if t, ok := titles[kind]; ok {
		return t
	}
	return string(kind)
}

// escapeBraces keeps node-supplied text from looking like a placeholder.
func escapeBraces(s string) string {
	return strings.ReplaceAll(s, "{{", "&#123;&#123;")
}

// NotGenerated is the document a cache slot holds before the first regeneration.
func NotGenerated(kind v1.ReportKind) string {
	return strings.NewReplacer(
		tokTitle, Title(kind),
		tokStyle, sharedStyle,
		tokHeading, Title(kind),
		tokGeneratedAt, "never",
		tokNodeCount, "0",
		tokFailedCount, "0",
		tokBody, `<p>Report not generated yet. Use the regenerate action to build it.</p>`,
	).Replace(documentTemplate)
}
