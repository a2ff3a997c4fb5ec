// Package catalog holds the built-in agent listings and the lookups used by the
// directory pages.
package catalog

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	githubPrefix       = "https://github.com/"
	replitDeployPrefix = "https://replit.com/github/"
	spaceDeployPrefix  = "https://huggingface.co/new-space?template="
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Agent is one directory listing.
type Agent struct {
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Stars       int       `json:"stars"`
	LastUpdated time.Time `json:"last_updated"`
	Author      string    `json:"author"`
	GitHub      string    `json:"github"`
}

// DeployLinks are one-click deployment targets derived from the GitHub URL.
type DeployLinks struct {
	Replit      string `json:"replit"`
	HuggingFace string `json:"hugging_face"`
}

var builtIn = []Agent{
	newAgent("GitHub Issue Summarizer",
		"Summarizes GitHub issues and PRs with AI. Supports all public repos, instant summaries via MCP API.",
		[]string{"productivity", "automation", "Node"}, 118, "2024-04-08", "alice",
		"https://github.com/alice/github-issue-summarizer-mcp"),
	newAgent("OpenAI Chat Proxy",
		"Wraps OpenAI GPT API as a compliant MCP agent for easy integration. Caching & auto-retry included.",
		[]string{"dev tools", "Python"}, 87, "2024-04-09", "bob",
		"https://github.com/bob/openai-mcp-agent"),
	newAgent("Calendar Linker",
		"Integrates calendar events with MCP workflows, trigger workflows from meetings.",
		[]string{"automation", "productivity", "Go"}, 55, "2024-03-31", "eve",
		"https://github.com/eve/calendar-linker-mcp"),
	newAgent("Voice Note Transcriber",
		"Transcribe voice notes and messages on the fly with high accuracy. MCP-compatible API.",
		[]string{"education", "automation", "Python"}, 66, "2024-03-28", "charlie",
		"https://github.com/charlie/voice-transcribe-mcp"),
	newAgent("Slack Automator",
		"Automate Slack notifications with MCP triggers and custom workflows. Easy integration with Python.",
		[]string{"dev tools", "automation", "Python"}, 42, "2024-04-03", "denise",
		"https://github.com/denise/slack-automator-mcp"),
}

func newAgent(name, description string, tags []string, stars int, lastUpdated, author, github string) Agent {
	updated, err := time.Parse(time.DateOnly, lastUpdated)
	if err != nil {
		panic(err)
	}
	return Agent{
		Name:        name,
		Slug:        Slugify(name),
		Description: description,
		Tags:        tags,
		Stars:       stars,
		LastUpdated: updated,
		Author:      author,
		GitHub:      github,
	}
}

// Slugify lowercases name and replaces every whitespace run with a hyphen. The
// slug doubles as the engagement item id.
func Slugify(name string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(name), "-")
}

// All returns a copy of every listing in directory order.
func All() []Agent {
	agents := make([]Agent, 0, len(builtIn))
	for _, agent := range builtIn {
		agents = append(agents, agent.clone())
	}
	return agents
}

// Find returns the listing whose slug matches, ignoring case.
func Find(slug string) (Agent, bool) {
	wanted := strings.ToLower(strings.TrimSpace(slug))
	if wanted == "" {
		return Agent{}, false
	}
	for _, agent := range builtIn {
		if agent.Slug == wanted {
			return agent.clone(), true
		}
	}
	return Agent{}, false
}

// Filter keeps listings carrying every tag in tags whose name or description
// contains query, case-insensitively. Empty criteria match everything.
func Filter(tags []string, query string) []Agent {
	needle := strings.ToLower(strings.TrimSpace(query))
	matches := make([]Agent, 0, len(builtIn))
	for _, agent := range builtIn {
		if !hasAllTags(agent, tags) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(agent.Name), needle) &&
			!strings.Contains(strings.ToLower(agent.Description), needle) {
			continue
		}
		matches = append(matches, agent.clone())
	}
	return matches
}

// AllTags returns the sorted, de-duplicated union of listing tags.
func AllTags() []string {
	seen := make(map[string]struct{})
	tags := make([]string, 0)
	for _, agent := range builtIn {
		for _, tag := range agent.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// Deploy returns the deployment links for the listing.
func (a Agent) Deploy() DeployLinks {
	return DeployLinks{
		Replit:      replitDeployPrefix + url.QueryEscape(strings.TrimPrefix(a.GitHub, githubPrefix)),
		HuggingFace: spaceDeployPrefix + url.QueryEscape(a.GitHub),
	}
}

func hasAllTags(agent Agent, tags []string) bool {
	for _, wanted := range tags {
		if strings.TrimSpace(wanted) == "" {
			continue
		}
		found := false
		for _, tag := range agent.Tags {
			if tag == wanted {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (a Agent) clone() Agent {
	a.Tags = append([]string(nil), a.Tags...)
	return a
}
