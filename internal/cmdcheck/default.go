package cmdcheck

// DefaultRules is the built-in base-command classification.
//
// Shell interpreters are blacklisted deliberately: an agent handed
// "bash -c '...'" could smuggle any payload past base-token
// classification, so interpreters never run regardless of whitelist
// edits.
var DefaultRules = Rules{
	Whitelist: []string{
		"ls", "cat", "head", "tail", "wc", "grep", "find", "file", "stat",
		"echo", "printf", "pwd", "date", "whoami", "hostname", "uname", "id",
		"which", "env", "sort", "uniq", "cut", "tr", "diff",
		"mkdir", "touch", "cp", "mv", "ln",
		"git", "go", "python3", "node", "npm", "make",
		"tar", "gzip", "gunzip", "zip", "unzip",
		"true", "false", "sleep",
	},
	Blacklist: []string{
		"rm", "rmdir", "dd", "mkfs", "mkfs.ext4", "shred", "fdisk",
		"sudo", "su", "doas", "passwd", "useradd", "userdel", "usermod",
		"chmod", "chown", "chgrp", "mount", "umount",
		"shutdown", "reboot", "halt", "poweroff", "init", "systemctl",
		"kill", "killall", "pkill",
		"bash", "sh", "zsh", "fish", "dash", "ksh", "csh",
		"eval", "exec", "source", "nc", "ncat", "socat",
	},
}
