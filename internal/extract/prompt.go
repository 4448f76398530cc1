package extract

import (
	"fmt"

	"github.com/mikey/jobmail/internal/core"
)

// promptFormat instructs the model to classify job relevance first and
// then emit one entry per application mention. The same prompt is used
// by every provider adapter so their outputs parse identically.
const promptFormat = `You are a filter and parser for job application emails.
First, determine if this email is actually related to a work/job application, interview, or job search communication.
EXCLUDE emails related to: scholarships, rentals (including rental applications, apartment hunting, housing, lease, sublet), promotions, roommate searches, or anything not directly about paid employment.
Respond with a JSON object containing:
- relevant: true or false
- reason: short explanation (e.g., 'job interview', 'rental application', 'not job-related')
- applications: an array with one entry per job application mentioned, each containing:
  - company: string (empty if unknown)
  - job_title: string (empty if unknown)
  - status: one of applied/interview/offer/rejected/unknown
  - date: string (if found in the email)
If the email is not job-related, set relevant to false and leave applications empty.

Email sender: %s
Email subject: %s
Email body:
%s

Respond only with the JSON object and nothing else.`

// BuildPrompt renders the extraction prompt for a message. The body is
// expected to be truncated and sanitized by the caller.
func BuildPrompt(msg *core.Message, body string) string {
	return fmt.Sprintf(promptFormat, msg.Sender, msg.Subject, body)
}
