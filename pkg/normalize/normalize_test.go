package normalize

import "testing"

func TestName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"leading and trailing spaces", "  中国平安  ", "中国平安"},
		{"internal whitespace", "中国 平安\t保险", "中国平安保险"},
		{"status marker at end with dash", "中国平安-已转出", "中国平安"},
		{"status marker at end in brackets", "中国平安（已转出）", "中国平安"},
		{"status marker ascii brackets", "中国平安(终止)", "中国平安"},
		{"status marker at start", "已转出-中国平安", "中国平安"},
		{"status marker at start bracketed", "（原）中国平安", "中国平安"},
		{"longest marker wins", "中国平安-已作废", "中国平安"},
		{"subsidiary suffix", "中国平安及下属子企业", "中国平安"},
		{"group trust suffix", "中国平安(团托)", "中国平安"},
		{"group trust suffix full width", "中国平安（团托）", "中国平安"},
		{"alpha code suffix", "中国平安-BSU280", "中国平安"},
		{"numeric suffix", "中国平安-2023", "中国平安"},
		{"pension suffix", "中国平安-养老", "中国平安"},
		{"welfare suffix", "中国平安-福利", "中国平安"},
		{"ascii brackets normalized", "中国平安(集团)", "中国平安（集团）"},
		{"full width ascii folded", "ＡＢＣ公司", "abc公司"},
		{"trailing dash", "中国平安-", "中国平安"},
		{"trailing period", "中国平安。", "中国平安"},
		{"trailing empty brackets", "中国平安（）", "中国平安"},
		{"uppercase lowered", "ABC Holdings", "abcholdings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Name(tt.in); got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestName_Idempotent(t *testing.T) {
	inputs := []string{
		"  中国平安  ",
		"中国平安-已转出",
		"中国平安(集团)",
		"ＡＢＣ公司-养老",
		"（原）测试企业（团托）",
	}
	for _, in := range inputs {
		once := Name(in)
		twice := Name(once)
		if once != twice {
			t.Errorf("Name not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestName_VariantsCollide(t *testing.T) {
	// All of these refer to the same company and must map to one key.
	variants := []string{
		"中国平安",
		" 中国平安 ",
		"中国平安-已转出",
		"中国平安（已转出）",
		"已转出-中国平安",
	}
	want := Name(variants[0])
	for _, v := range variants[1:] {
		if got := Name(v); got != want {
			t.Errorf("Name(%q) = %q, want %q", v, got, want)
		}
	}
}
