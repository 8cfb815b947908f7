package prompt

import (
	"fmt"

	"github.com/yshirai/genimage/internal/style"
	"github.com/yshirai/genimage/pkg/models"
)

// template is the fixed shape of every assembled prompt. Subject and
// style text are substituted verbatim; nothing is escaped or reflowed.
const template = "Subject: %s\nStyle: %s\nParameters: Resolution=%s; Aspect ratio=%s; Output=PNG"

// Assemble builds the final prompt for a subject, a style and the two
// rendering parameters.
func Assemble(subject string, st style.Style, res models.Resolution, ar models.AspectRatio) string {
	return fmt.Sprintf(template, subject, st.Prompt, res, ar)
}
