// Copyright 2025 The Scout Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package briefing renders a finished execution result into the markdown
// document delivered to the webhook.
package briefing

import (
	"fmt"
	"strings"
	"time"

	"github.com/scopeworks/scout/pkg/executor"
)

// Briefing is the rendered deliverable.
type Briefing struct {
	Subject  string `json:"subject"`
	Markdown string `json:"markdown"`
}

// Render assembles the subject line and markdown body from an execution
// result. Sections carry their citation superscripts already; this adds
// the numbered source list and any limitations.
func Render(result *executor.Result, topic string, date time.Time) *Briefing {
	if topic == "" {
		topic = stringVar(result, "topic")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", subjectLine(topic, date)))

	for _, section := range result.Sections {
		sb.WriteString(strings.TrimSpace(section))
		sb.WriteString("\n\n")
	}
	if len(result.Sections) == 0 {
		sb.WriteString("_No briefing content was produced for this run._\n\n")
	}

	if len(result.Citations) > 0 {
		sb.WriteString("## Sources\n\n")
		for i, citation := range result.Citations {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, citation))
		}
		sb.WriteString("\n")
	}

	if len(result.Limitations) > 0 {
		sb.WriteString("## Limitations\n\n")
		for _, note := range result.Limitations {
			sb.WriteString(fmt.Sprintf("- %s\n", note))
		}
	}

	return &Briefing{
		Subject:  subjectLine(topic, date),
		Markdown: strings.TrimRight(sb.String(), "\n") + "\n",
	}
}

func subjectLine(topic string, date time.Time) string {
	if topic == "" {
		topic = "Research briefing"
	}
	return fmt.Sprintf("%s: %s", topic, date.Format("Jan 2, 2006"))
}

func stringVar(result *executor.Result, key string) string {
	if v, ok := result.Variables[key].(string); ok {
		return v
	}
	return ""
}
