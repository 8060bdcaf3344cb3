package main

// mainTemplate is emitted by the cfg-main subcommand as a starting
// point for /etc/maildropd/maildropd.toml. Filter sections live here;
// account credentials go in the separate account file.
const mainTemplate = `# maildropd main configuration.
#
# Install as /etc/maildropd/maildropd.toml. This file holds daemon
# options and filter rules; destination credentials belong in the
# account file (see: maildropd cfg-account).

# Bytes read per syscall from a connected client.
buffer_size = 8192

# Detach from the terminal after the socket is bound. Override at the
# command line with -foreground.
daemonize = true

# One of: debug, info, notice, warning, error, critical, alert, emergency.
log_level = "info"

# Log to stderr instead of syslog (mail facility). Useful with -foreground.
log_console = false

# The PID marker and control socket are created here.
runtime_dir = "/run/maildropd"

# The socket is owned root:socket_group with mode 0660; members of this
# group may submit mail.
socket_group = "maildrop"

# Unprivileged user the daemon runs as after startup.
user = "maildrop"

[metrics]
enabled = false
address = ":9099"
path = "/metrics"

# Filter rules are applied in declaration order. Section names are
# "filter <field> <name>" where field is from, to or subject. A rule
# whose replacement leaves From or To empty drops the message.

#["filter subject strip-list-tag"]
#pattern = '^\[users\] '
#replace = ""

#["filter from strip-plus"]
#pattern = '^([^+]+)\+[^@]*@'
#replace = "$1@"

# Accept-list example: keep known recipients, erase the rest. A
# message whose To ends up empty is dropped.
#["filter to known-recipients"]
#pattern = '^((?:alice|bob)@example\.com)?.*$'
#replace = "$1"
`

// accountTemplate is emitted by the cfg-account subcommand. The file
// carries credentials and must not be world readable.
const accountTemplate = `# maildropd account configuration.
#
# Install as /etc/maildropd/accounts.toml with mode 0600: this file
# contains passwords and the daemon warns if it is world readable.
#
# Each section declares one destination as "<kind> <name>" where kind
# is remote, maildir-flat or maildir-hier. Every accepted message is
# appended to all of them, in declaration order.

#["remote work"]
#host = "imap.example.com"
#port = 993
#username = "user@example.com"
#password = "secret"
#folder = "INBOX"

# A single maildir; folders are Maildir++ dot-directories inside it.
#["maildir-flat archive"]
#path = "/var/mail/archive"
#folder = "Archive"

# A directory of maildirs; each folder is a child maildir.
#["maildir-hier sorted"]
#path = "/home/user/Mail"
#folder = "INBOX"
`
