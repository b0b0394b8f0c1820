package pathfind

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "pathfind")
