package channel

import (
	"slices"
	"strings"
)

// Categories used by the catalog filters.
const (
	CategoryNews          = "news"
	CategorySports        = "sports"
	CategoryEntertainment = "entertainment"
	CategoryMusic         = "music"
	CategoryKids          = "kids"
	CategoryMovies        = "movies"
	CategoryDocumentary   = "documentary"
	CategoryReligious     = "religious"
	CategoryOther         = "other"
)

// CategoryAll matches every category in a Query.
const CategoryAll = "all"

type categoryKeywords struct {
	category string
	keywords []string
}

// Checked in order; the first category with a matching keyword wins.
var keywordTable = []categoryKeywords{
	{CategoryNews, []string{"news", "akhbar", "noticias", "nouvelles", "nachrichten", "haber", "warta", "samachar", "khabar"}},
	{CategorySports, []string{"sport", "cricket", "football", "soccer", "tennis", "nba", "nfl", "espn", "star sports", "willow"}},
	{CategoryEntertainment, []string{"entertainment", "general", "comedy", "drama", "hd", "star plus", "colors", "zee", "sony"}},
	{CategoryMusic, []string{"music", "mtv", "vh1", "song", "sangeet", "gaana"}},
	{CategoryKids, []string{"kids", "cartoon", "nick", "disney", "pogo", "hungama", "cbeebies", "baby"}},
	{CategoryMovies, []string{"movie", "cinema", "film", "hbo", "starz", "showtime", "plex"}},
	{CategoryDocumentary, []string{"documentary", "discovery", "national geographic", "nat geo", "history", "animal planet", "science"}},
	{CategoryReligious, []string{"religious", "god", "church", "bible", "quran", "prayer", "spiritual", "aastha", "peace"}},
}

// GuessCategory picks a category from keywords found in the channel name or group title.
// It is the fallback used when no catalog metadata is available for a channel.
func GuessCategory(name, groupTitle string) string {
	text := strings.ToLower(name + " " + groupTitle)
	for _, entry := range keywordTable {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.category
			}
		}
	}
	return CategoryOther
}

// Categories returns the distinct categories present in channels, sorted.
func Categories(channels []Channel) []string {
	seen := make(map[string]struct{}, len(channels))
	cats := make([]string, 0)
	for _, ch := range channels {
		if _, ok := seen[ch.Category()]; ok {
			continue
		}
		seen[ch.Category()] = struct{}{}
		cats = append(cats, ch.Category())
	}
	slices.Sort(cats)
	return cats
}

// Query narrows a channel list by category and free-text search.
type Query struct {
	Category string
	Search   string
}

// Filter returns the channels matching q, preserving order.
// An empty category or CategoryAll matches everything; the search is a
// case-insensitive substring match against name and group title.
func Filter(channels []Channel, q Query) []Channel {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	result := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if q.Category != "" && q.Category != CategoryAll && ch.Category() != q.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(ch.Name()), search) &&
			!strings.Contains(strings.ToLower(ch.Group()), search) {
			continue
		}
		result = append(result, ch)
	}
	return result
}
