package main

import "testing"

func TestRootCommandRegistersAllVerbs(t *testing.T) {
	root := newRootCommand()
	want := []string{"go", "start", "stop", "status"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Fatalf("Find(%q): %v", name, err)
		}
		if cmd.Name() != name {
			t.Fatalf("Find(%q) resolved to %q", name, cmd.Name())
		}
	}
}

func TestRootCommandDefaultFlags(t *testing.T) {
	root := newRootCommand()
	f := root.PersistentFlags()

	if v, err := f.GetString("root"); err != nil || v != "." {
		t.Fatalf("default root flag = %q, err %v", v, err)
	}
	if v, err := f.GetString("config"); err != nil || v != "tiny.conf" {
		t.Fatalf("default config flag = %q, err %v", v, err)
	}
	if v, err := f.GetString("protocol"); err != nil || v != "fastcgi" {
		t.Fatalf("default protocol flag = %q, err %v", v, err)
	}
}
