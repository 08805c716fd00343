package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

type VideoInfo struct {
	Path       string        `json:"path"`
	FPS        float64       `json:"fps"`
	FrameCount int           `json:"frame_count"`
	Duration   time.Duration `json:"-"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Codec      string        `json:"codec"`
}

type Frame struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	Path      string  `json:"path"`
}

// FrameCaption is one captioned frame as stored in the captions file.
type FrameCaption struct {
	Timestamp float64  `json:"timestamp"`
	FramePath string   `json:"frame_path"`
	Captions  Captions `json:"captions"`
}

// Captions holds the caption text of a frame. On disk it may be a plain
// string, an object of named captions or an array of strings; it is always
// written back as a string.
type Captions string

func (c *Captions) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = Captions(strings.TrimSpace(s))
		return nil
	}

	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*c = Captions(joinNonEmpty(arr))
		return nil
	}

	var obj map[string]string
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("captions: unsupported value %s", truncate(string(b), 60))
	}
	*c = Captions(joinNonEmpty(orderedCaptionValues(obj)))
	return nil
}

func (c Captions) String() string { return string(c) }

// orderedCaptionValues puts "general" first, then detailed_1..N in numeric
// order, then every other key alphabetically.
func orderedCaptionValues(obj map[string]string) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	rank := func(k string) (int, int) {
		if k == "general" {
			return 0, 0
		}
		var n int
		if _, err := fmt.Sscanf(k, "detailed_%d", &n); err == nil {
			return 1, n
		}
		return 2, 0
	}
	sort.Slice(keys, func(i, j int) bool {
		gi, ni := rank(keys[i])
		gj, nj := rank(keys[j])
		if gi != gj {
			return gi < gj
		}
		if ni != nj {
			return ni < nj
		}
		return keys[i] < keys[j]
	})
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, obj[k])
	}
	return out
}

func joinNonEmpty(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type Question struct {
	QID      string   `json:"qid"`
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
	Task     string   `json:"task"`
	VideoUID string   `json:"video_uid"`
	// Gold is the index of the correct choice, -1 when unknown.
	Gold int `json:"gold"`
}

type Image struct {
	MIME string
	Data []byte
}

type Message struct {
	Role   string
	Text   string
	Images []Image
}

func UserText(text string) Message      { return Message{Role: "user", Text: text} }
func AssistantText(text string) Message { return Message{Role: "assistant", Text: text} }

type ActionKind string

const (
	ActionFinalAnswer   ActionKind = "FINAL_ANSWER"
	ActionFrameSelector ActionKind = "FRAME_SELECTOR"
	ActionVLM           ActionKind = "VLM"
	ActionContinue      ActionKind = "CONTINUE"
	ActionUnknown       ActionKind = "UNKNOWN"
)

type Action struct {
	Kind ActionKind
	Body string
}

type Turn struct {
	Iteration      int        `json:"iteration"`
	Action         ActionKind `json:"action"`
	LLMResponse    string     `json:"llm_response"`
	SystemResponse string     `json:"system_response"`
}

type Result struct {
	QID                  string         `json:"qid,omitempty"`
	Task                 string         `json:"task,omitempty"`
	Question             string         `json:"question"`
	Choices              []string       `json:"choices"`
	Answer               string         `json:"answer"`
	AnswerIndex          int            `json:"answer_index"`
	Reasoning            string         `json:"reasoning"`
	Iterations           int            `json:"iterations,omitempty"`
	MaxIterationsReached bool           `json:"max_iterations_reached,omitempty"`
	History              []Turn         `json:"conversation_history,omitempty"`
	SelectedFrames       []FrameCaption `json:"selected_frames,omitempty"`
	Duration             time.Duration  `json:"-"`
	ProcessingSeconds    float64        `json:"processing_time"`
	Error                string         `json:"error,omitempty"`
}

type KeyFrame struct {
	FrameIndex int       `json:"frame_id"`
	Timestamp  float64   `json:"timestamp"`
	Path       string    `json:"frame_path"`
	ClusterID  int       `json:"cluster_id"`
	Centroid   []float64 `json:"cluster_centroid,omitempty"`
}

type TaskAccuracy struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

type EvalSummary struct {
	RunID    string                  `json:"run_id"`
	Total    int                     `json:"total_questions"`
	Graded   int                     `json:"graded_questions"`
	Correct  int                     `json:"correct_answers"`
	Errors   int                     `json:"errors"`
	Accuracy float64                 `json:"overall_accuracy"`
	ByTask   map[string]TaskAccuracy `json:"task_accuracies"`
}
