package cmdutil

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"git status", "git status"},
		{"  Git   Status  ", "git status"},
		{"Crème Brûlée", "creme brulee"},
		{"Straße", "strasse"},
		{"ÆON øresund", "aeon oresund"},
		{"naïve café", "naive cafe"},
		{"ls -la | grep FOO", "ls -la | grep foo"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Flatten(tt.in), "Flatten(%q)", tt.in)
	}
}

func TestFlattenPtr(t *testing.T) {
	t.Parallel()

	assert.Nil(t, FlattenPtr(nil))
	s := "Déjà Vu"
	got := FlattenPtr(&s)
	require.NotNil(t, got)
	assert.Equal(t, "deja vu", *got)
}

func TestHasWordChar(t *testing.T) {
	t.Parallel()

	assert.True(t, HasWordChar("-m"))
	assert.True(t, HasWordChar("é"))
	assert.False(t, HasWordChar("|"))
	assert.False(t, HasWordChar("''"))
	assert.False(t, HasWordChar(""))
}

func TestExtractVariables(t *testing.T) {
	t.Parallel()

	vars := ExtractVariables("docker run --name {{Name}} {{ image }} {{name}}")
	require.Len(t, vars, 2)
	assert.Equal(t, Variable{Name: "Name", Flat: "name"}, vars[0])
	assert.Equal(t, Variable{Name: "image", Flat: "image"}, vars[1])

	assert.Nil(t, ExtractVariables("ls -la"))
	assert.True(t, IsTemplate("echo {{msg}}"))
	assert.False(t, IsTemplate("echo {msg}"))
}

func TestTemplateToRegex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		input    string
		want     bool
	}{
		{"quoted placeholder multi word", "git commit -m '{{message}}'", "git commit -m 'fix bug'", true},
		{"quoted placeholder empty", "git commit -m '{{message}}'", "git commit -m ''", true},
		{"missing value", "git commit -m '{{message}}'", "git commit -m", false},
		{"bare token", "docker run {{image}}", "docker run nginx", true},
		{"bare token quoted value", "docker run {{image}}", `docker run "my image"`, true},
		{"bare token rejects two words", "docker run {{image}}", "docker run my image", false},
		{"extra whitespace", "kubectl get {{resource}}", "  kubectl   get  pods ", true},
		{"metacharacters are literal", "grep -E {{pattern}} *.go", "grep -E foo *.go", true},
		{"metacharacters don't expand", "grep -E {{pattern}} *.go", "grep -E foo main.go", false},
		{"attached to flag", "ssh -p{{port}} {{host}}", "ssh -p2222 example.org", true},
		{"no placeholders", "ls -la", "ls -la", true},
		{"no placeholders prefix only", "ls -la", "ls -la /tmp", false},
		{"case sensitive", "git checkout {{branch}}", "GIT checkout main", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			re, err := regexp.Compile(TemplateToRegex(tt.template))
			require.NoError(t, err)
			assert.Equal(t, tt.want, re.MatchString(tt.input), "pattern %s", re.String())
		})
	}
}

func TestExtractTags(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"#git", "#vcs"}, ExtractTags("Commit everything #git #VCS #git"))
	assert.Equal(t, []string{"#k8s-prod"}, ExtractTags("#k8s-prod rollout"))
	assert.Nil(t, ExtractTags("fixes issue#12"))
	assert.Nil(t, ExtractTags(""))
}

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "#docker", NormalizeTag("Docker"))
	assert.Equal(t, "#docker", NormalizeTag("#docker"))
	assert.Equal(t, "#docker", NormalizeTag("##Docker"))
	assert.Equal(t, "", NormalizeTag("#"))
	assert.Equal(t, "", NormalizeTag("  "))
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"git", "commit", "-m", "fix bug"}, SplitCommand(`git commit -m "fix bug"`))
	// Unterminated quote falls back to whitespace splitting
	assert.Equal(t, []string{"echo", `"oops`}, SplitCommand(`echo "oops`))
}

func TestRootToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cmd  string
		want string
	}{
		{"git status", "git"},
		{"sudo apt update", "apt"},
		{"sudo", "sudo"},
		{"", ""},
		{"  kubectl get pods", "kubectl"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RootToken(tt.cmd), "RootToken(%q)", tt.cmd)
	}
}
