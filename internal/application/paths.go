package application

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Paths lays out the files of a data directory.
type Paths struct {
	root string
}

func NewPaths(root string) Paths {
	return Paths{root: root}
}

// SafeName replaces every character that is not a letter or a digit.
func SafeName(source string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, source)
}

func suffix(allPages bool) string {
	if allPages {
		return "_all_pages"
	}
	return ""
}

func (p Paths) HTML(source string, allPages bool) string {
	return filepath.Join(p.root, "html", SafeName(source)+"_latest_downloaded"+suffix(allPages)+".html")
}

func (p Paths) Processed(source string, allPages bool) string {
	return filepath.Join(p.root, "processed_launches", SafeName(source)+"_processed"+suffix(allPages)+".json")
}

// ToSync derives the batch file of a processed file.
func (p Paths) ToSync(processedPath string) string {
	base := strings.TrimSuffix(filepath.Base(processedPath), filepath.Ext(processedPath))
	return filepath.Join(p.root, "to_sync_launches", base+"_to_sync.json")
}

func (p Paths) Progress() string {
	return filepath.Join(p.root, "sync_progress.json")
}
