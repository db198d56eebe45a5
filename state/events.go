package state

const (
	SourceAPI     = "api"
	SourceHomeKit = "homekit"
	SourceRestore = "restore"
)

type SwitchAdded struct {
	Switch Switch
	Source string
}

type SwitchRemoved struct {
	Switch Switch
}

type SwitchStateChanged struct {
	Switch Switch
	Source string
}
