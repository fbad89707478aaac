package prompts

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedPromptsCoverEveryStage(t *testing.T) {
	cache := NewCache(nil)

	stages := []string{
		"job_research_collect", "job_research_summarize",
		"ivc_task_extractor", "ivc_phase_classifier", "static_task_classifier",
		"workflow_struct", "workflow_mermaid",
		"ax_workflow_architect", "agent_architect", "deep_skill_research",
		"skill_extractor", "prompt_builder",
	}

	for _, stage := range stages {
		t.Run(stage, func(t *testing.T) {
			tmpl, err := cache.Get(stage)
			require.NoError(t, err)
			assert.Contains(t, tmpl, InputPlaceholder)
		})
	}

	names, err := cache.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, stages, names)
}

func TestGet_UnknownStage(t *testing.T) {
	cache := NewCache(nil)

	_, err := cache.Get("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCache_ReadThroughAndReload(t *testing.T) {
	fsys := fstest.MapFS{
		"a.json": {Data: []byte(`{"stage_a": "first {input_json}"}`)},
	}
	cache := NewCache(fsys)

	tmpl, err := cache.Get("stage_a")
	require.NoError(t, err)
	assert.Equal(t, "first {input_json}", tmpl)

	fsys["a.json"] = &fstest.MapFile{Data: []byte(`{"stage_a": "second {input_json}"}`)}

	tmpl, err = cache.Get("stage_a")
	require.NoError(t, err)
	assert.Equal(t, "first {input_json}", tmpl, "cached value is served until reload")

	cache.Reload()
	tmpl, err = cache.Get("stage_a")
	require.NoError(t, err)
	assert.Equal(t, "second {input_json}", tmpl)
}

func TestCache_DuplicateKeyAcrossFiles(t *testing.T) {
	cache := NewCache(fstest.MapFS{
		"a.json": {Data: []byte(`{"dup": "x"}`)},
		"b.json": {Data: []byte(`{"dup": "y"}`)},
	})

	_, err := cache.Get("dup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined twice")
}

func TestCache_InvalidFile(t *testing.T) {
	cache := NewCache(fstest.MapFS{
		"bad.json": {Data: []byte(`not json`)},
	})

	_, err := cache.Get("anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse prompt file")
}

func TestRenderTemplate(t *testing.T) {
	input := map[string]any{
		"company_name": "Acme & Co",
		"raw_job_desc": "데이터를 수집하고 <보고서>를 작성한다.",
	}

	out, err := RenderTemplate("Input:\n{input_json}\nEnd", input)
	require.NoError(t, err)
	assert.Equal(t,
		"Input:\n{\"company_name\":\"Acme & Co\",\"raw_job_desc\":\"데이터를 수집하고 <보고서>를 작성한다.\"}\nEnd",
		out)
}

func TestRenderTemplate_UnencodableInput(t *testing.T) {
	_, err := RenderTemplate("{input_json}", map[string]any{"ch": make(chan int)})
	require.Error(t, err)
}

func TestRender_UsesStageTemplate(t *testing.T) {
	cache := NewCache(fstest.MapFS{
		"p.json": {Data: []byte(`{"echo": "<<{input_json}>>"}`)},
	})

	out, err := cache.Render("echo", struct {
		ID string `json:"id"`
	}{ID: "T01"})
	require.NoError(t, err)
	assert.Equal(t, `<<{"id":"T01"}>>`, out)
}
