package buildinfo

const (
	ProjectName     = "Equinox race bot"
	GithubURL       = "https://github.com/equinox-racing/racebot"
	AptosExplorerTx = "https://explorer.aptoslabs.com/txn/%s?network=testnet"
)

const Graffiti = `
  ___            _                 
 | __|__ _ _  _ (_)_ _  _____ __   
 | _|/ _' | || || | ' \/ _ \ \ /   
 |___\__, |\_,_||_|_||_\___/_\_\   
        |_|           race bot
`

const GreetingCLI = `
%s %s
Keeps races on the contract moving: advances started races and
executes quick races once their start time has passed.

Sources: %s
`

const UserAgent = "equinox-racebot"
