package superproject

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/go-wordwrap"
)

const (
	subjectLimit = 50
	bodyWidth    = 72
)

// commitMessage lists the updated submodules, sorted case-insensitively.
// When the sentence does not fit a subject line it moves to the body.
func commitMessage(names []string, branch string) string {
	sorted := append([]string(nil), names...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i]) < strings.ToLower(sorted[j])
	})

	sentence := fmt.Sprintf("Update %s from %s.", strings.Join(sorted, ", "), branch)
	if len(sentence) <= subjectLimit {
		return sentence
	}
	return fmt.Sprintf("Update submodules from %s.\n\n%s\n", branch, wordwrap.WrapString(sentence, bodyWidth))
}
