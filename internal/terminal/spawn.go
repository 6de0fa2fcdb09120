package terminal

// localSpec turns local options into a spawn spec. The shell is resolved here
// so resolution failures surface as spawn errors.
func localSpec(opts LocalOptions) (SpawnSpec, error) {
	program := opts.Shell
	if program == "" {
		sh, err := ResolveShell()
		if err != nil {
			return SpawnSpec{}, err
		}
		program = sh
	}

	dir := opts.Dir
	if dir == "" {
		dir = defaultDir()
	}

	tag := opts.EnvironmentTag
	if tag == "" {
		tag = DefaultLocalTag
	}

	return SpawnSpec{
		Program: program,
		Args:    opts.Args,
		Dir:     dir,
		Env:     opts.Env,
		Cols:    opts.Cols,
		Rows:    opts.Rows,
		Raw:     opts.Raw,
		Origin: map[string]string{
			OriginEnvironmentTag: tag,
			OriginScope:          "local",
		},
	}, nil
}

// sshSpec validates params and renders the ssh command line
func sshSpec(p SSHParams) (SpawnSpec, error) {
	args, err := BuildSSHArgs(p)
	if err != nil {
		return SpawnSpec{}, err
	}

	program, err := ResolveSSH()
	if err != nil {
		return SpawnSpec{}, err
	}

	tag := p.EnvironmentTag
	if tag == "" {
		tag = DefaultSSHTag
	}

	origin := map[string]string{
		OriginEnvironmentTag: tag,
		OriginScope:          SSHScope(p),
	}
	if p.HostID != "" {
		origin[OriginHostID] = p.HostID
	}

	return SpawnSpec{
		Program: program,
		Args:    args,
		Cols:    p.Cols,
		Rows:    p.Rows,
		Origin:  origin,
	}, nil
}
