package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/vidqa/internal/types"
	"github.com/stretchr/testify/require"
)

func TestRead_MCQColumn(t *testing.T) {
	in := `,qid,question,mcq_test,task,video_uid,correct_answer_label
0,q1,Where is the lamp?,"A. left of the sofa
B. right of the sofa
C. on the table",spatial/layout,vid-1,B
1,q2,What is on the desk?,A. a laptop B. a mug,spatial/objects,vid-1,
2,q3,No choices here?,,spatial/layout,vid-1,
`
	qs, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, qs, 2)

	require.Equal(t, types.Question{
		QID:      "q1",
		Question: "Where is the lamp?",
		Choices:  []string{"left of the sofa", "right of the sofa", "on the table"},
		Task:     "spatial/layout",
		VideoUID: "vid-1",
		Gold:     1,
	}, qs[0])
	require.Equal(t, []string{"a laptop", "a mug"}, qs[1].Choices)
	require.Equal(t, -1, qs[1].Gold)
}

func TestRead_AnswerColumns(t *testing.T) {
	in := "question,task,answer_1,answer_2,answer_3,answer_4,answer_5\n" +
		"Which room comes first?,navigation,kitchen,bedroom,garage,,\n" +
		"Second?,navigation,yes,no,nan,,\n"
	qs, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, qs, 2)
	require.Equal(t, "1", qs[0].QID)
	require.Equal(t, []string{"kitchen", "bedroom", "garage"}, qs[0].Choices)
	require.Equal(t, 0, qs[0].Gold)
	require.Equal(t, []string{"yes", "no"}, qs[1].Choices)
}

func TestRead_Errors(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	require.Error(t, err)
	_, err = Read(strings.NewReader("qid,task\n1,x\n"))
	require.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	p := filepath.Join(t.TempDir(), "set.csv")
	require.NoError(t, os.WriteFile(p, []byte("question,mcq_test\nWhy?,A. because B. no\n"), 0o644))
	qs, err := LoadCSV(p)
	require.NoError(t, err)
	require.Len(t, qs, 1)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestParseInline(t *testing.T) {
	q, ok := ParseInline("Where is the cup? A) on the table B) in the sink C) on the floor")
	require.True(t, ok)
	require.Equal(t, "Where is the cup?", q.Question)
	require.Equal(t, []string{"on the table", "in the sink", "on the floor"}, q.Choices)
	require.Equal(t, -1, q.Gold)

	_, ok = ParseInline("What happens at the end?")
	require.False(t, ok)
	_, ok = ParseInline("no question mark A) x B) y")
	require.False(t, ok)
}

func TestSample(t *testing.T) {
	qs := make([]types.Question, 25)
	for i := range qs {
		qs[i].QID = string(rune('a' + i))
	}
	got := Sample(qs, 10)
	require.Len(t, got, 3)
	require.Equal(t, []string{"a", "k", "u"}, []string{got[0].QID, got[1].QID, got[2].QID})
	require.Len(t, Sample(qs, 1), 25)
	require.Len(t, Sample(qs, 0), 25)
}

func TestParseChoices(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"newlines", "A. left\nB. right", []string{"left", "right"}},
		{"no space after dot", "A.Left of the sofa\nB.Right of the sofa", []string{"Left of the sofa", "Right of the sofa"}},
		{"one line", "A.a laptop B. a mug C.a lamp", []string{"a laptop", "a mug", "a lamp"}},
		{"other initials", "A. the U.S. flag B.a map", []string{"the U.S. flag", "a map"}},
		{"no marks", "left or right", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ParseChoices(tc.in))
		})
	}
}
