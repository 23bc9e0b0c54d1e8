package guildmodels

import "errors"

//ErrConflict is returned by the stores when an insert collides with an existing key
var ErrConflict = errors.New("document already exists")
