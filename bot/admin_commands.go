package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ishyv/tx-discord-bot-sub004/autorole"
	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
	"github.com/ishyv/tx-discord-bot-sub004/scheduler"
	"github.com/sirupsen/logrus"
)

const handleAddAdminRoleSyntax string = "`!addadminrole \"<role>\"` or `!addadminrole @<role>`"

//handleAddAdminRole handles a message containing an add admin role command
//command format: !addadminrole <role>
func (h *commandHandler) handleAddAdminRole(ctx context.Context, msg *discordgo.MessageCreate) Response {
	const command = "!addadminrole"
	if rejected := h.requireAdmin(ctx, command, msg); rejected != nil {
		return rejected
	}
	//Interpret and run the command
	argString := strings.TrimPrefix(msg.Content, command)
	argString = strings.TrimLeft(argString, " ")
	matchingRole, err := h.interpretRoleString(ctx, argString, msg.GuildID)
	if err != nil {
		return ResponseSyntaxError{
			command:     command,
			commandMsg:  msg.Content,
			description: err.Error(),
			syntax:      handleAddAdminRoleSyntax,
			timestamp:   time.Now(),
		}
	} else if matchingRole == nil {
		return ResponseSyntaxError{
			command:     command,
			commandMsg:  msg.Content,
			description: fmt.Sprintf("No role matching %v exists in this server", argString),
			syntax:      handleAddAdminRoleSyntax,
			timestamp:   time.Now(),
		}
	}
	noUpdated, err := h.db.AddAdminRole(msg.GuildID, matchingRole.ID)
	if err != nil {
		logrus.Warnf("Encountered error %v when trying to add role %v to admins on server %v", err, matchingRole.ID, msg.GuildID)
		return internalError(command, msg, err)
	}
	description := fmt.Sprintf("%v is now an admin role", matchingRole.Name)
	if noUpdated == 0 {
		description = fmt.Sprintf("%v was already an admin role", matchingRole.Name)
	}
	return ResponseSuccess{
		command:     command,
		commandMsg:  msg.Content,
		description: description,
		timestamp:   time.Now(),
	}
}

const handleAutoroleSyntax string = "```" +
	`!autorole create <name> <role> <live|duration> <trigger>
!autorole delete <name>
!autorole enable <name>
!autorole disable <name>
!autorole list
!autorole refresh
!autorole feature <on|off>
!autorole sweep antiquity

<name> is 1-32 lowercase letters, digits, '-' or '_'.
<role> may be the role name enclosed in double quotation marks, its ID or an @mention.
<duration> such as 12h, 7d or 2w makes the role temporary; "live" keeps it while the trigger holds.` +
	"```"

var regexCreateRule = regexp.MustCompile(`^create\s+(\S+)\s+(<@&\d+>|"[^"]*"|\S+)\s+(\S+)\s+(.+)$`)

//handleAutorole handles a message starting with the !autorole command
//syntax: !autorole <subcommand> [args]
func (h *commandHandler) handleAutorole(ctx context.Context, msg *discordgo.MessageCreate) Response {
	const command = "!autorole"
	if rejected := h.requireAdmin(ctx, command, msg); rejected != nil {
		return rejected
	}
	argString := strings.TrimSpace(strings.TrimPrefix(msg.Content, command))
	words := strings.Fields(argString)
	if len(words) == 0 {
		return autoroleSyntaxError(msg, "No subcommand was given")
	}

	switch strings.ToLower(words[0]) {
	case "create":
		return h.createRule(ctx, msg, argString)
	case "delete":
		if len(words) != 2 {
			return autoroleSyntaxError(msg, "delete takes exactly one rule name")
		}
		return h.deleteRule(ctx, msg, words[1])
	case "enable", "disable":
		if len(words) != 2 {
			return autoroleSyntaxError(msg, words[0]+" takes exactly one rule name")
		}
		return h.toggleRule(ctx, msg, words[1], strings.ToLower(words[0]) == "enable")
	case "list":
		return h.listRules(ctx, msg)
	case "refresh":
		n, err := h.autorole.RefreshGuildRules(ctx, msg.GuildID)
		if err != nil {
			return internalError(command, msg, err)
		}
		return autoroleSuccess(msg, fmt.Sprintf("Reloaded %d enabled rule(s)", n), nil)
	case "feature":
		if len(words) != 2 || (words[1] != "on" && words[1] != "off") {
			return autoroleSyntaxError(msg, "feature takes either on or off")
		}
		if err := h.db.SetFeature(ctx, msg.GuildID, guildmodels.FeatureAutorole, words[1] == "on"); err != nil {
			return internalError(command, msg, err)
		}
		return autoroleSuccess(msg, "Autorole is now "+words[1], nil)
	case "sweep":
		if len(words) != 2 || words[1] != "antiquity" {
			return autoroleSyntaxError(msg, "only the antiquity sweep can be started by hand")
		}
		return h.sweepAntiquity(ctx, msg)
	}
	return autoroleSyntaxError(msg, fmt.Sprintf("Unknown subcommand %v", words[0]))
}

func (h *commandHandler) createRule(ctx context.Context, msg *discordgo.MessageCreate, argString string) Response {
	matches := regexCreateRule.FindStringSubmatch(argString)
	if matches == nil {
		return autoroleSyntaxError(msg, "create needs a name, a role, a duration and a trigger")
	}
	name := strings.ToLower(matches[1])
	roleStr := matches[2]
	durationStr := strings.ToLower(matches[3])
	triggerStr := matches[4]

	role, err := h.interpretRoleString(ctx, roleStr, msg.GuildID)
	if err != nil {
		return internalError("!autorole", msg, err)
	} else if role == nil {
		return autoroleSyntaxError(msg, fmt.Sprintf("No role matching %v exists in this server", roleStr))
	}

	var duration time.Duration
	if durationStr != "live" {
		var ok bool
		if duration, ok = autorole.ParseAge(durationStr); !ok || duration <= 0 {
			return autoroleSyntaxError(msg, fmt.Sprintf("%v is neither live nor a duration", durationStr))
		}
	}

	trigger, ok := autorole.ParseTrigger(triggerStr)
	if !ok {
		return ResponseSyntaxError{
			command:     "!autorole",
			commandMsg:  msg.Content,
			description: fmt.Sprintf("Could not understand the trigger %v", triggerStr),
			syntax:      autorole.TriggerSyntax,
			timestamp:   time.Now(),
		}
	}

	rule := guildmodels.Rule{
		GuildID: msg.GuildID,
		Name:    name,
		Trigger: trigger,
		RoleID:  role.ID,
		Enabled: true,
	}
	if msg.Author != nil {
		rule.CreatedBy = msg.Author.ID
	}
	rule.SetDuration(duration)

	err = h.autorole.CreateRule(ctx, rule)
	switch {
	case errors.Is(err, autorole.ErrRuleExists):
		return autoroleSyntaxError(msg, fmt.Sprintf("A rule named %v already exists", name))
	case errors.Is(err, autorole.ErrInvalidRule):
		return autoroleSyntaxError(msg, err.Error())
	case err != nil:
		logrus.Warnf("Encountered error %v when trying to create rule %v on server %v", err, name, msg.GuildID)
		return internalError("!autorole", msg, err)
	}
	return autoroleSuccess(msg, fmt.Sprintf("Created rule %v", name), ruleFields(rule, role.Name))
}

func (h *commandHandler) deleteRule(ctx context.Context, msg *discordgo.MessageCreate, name string) Response {
	revoked, err := h.autorole.DeleteRule(ctx, msg.GuildID, strings.ToLower(name))
	switch {
	case errors.Is(err, autorole.ErrRuleNotFound):
		return autoroleSyntaxError(msg, fmt.Sprintf("No rule named %v exists", name))
	case err != nil && revoked > 0:
		return ResponsePartialSuccess{
			command:     "!autorole",
			commandMsg:  msg.Content,
			description: "The rule was deleted but some of its roles could not be removed",
			data: map[string]string{
				"Roles removed": strconv.Itoa(revoked),
				"Error":         err.Error(),
			},
			timestamp: time.Now(),
		}
	case err != nil:
		return internalError("!autorole", msg, err)
	}
	return autoroleSuccess(msg, fmt.Sprintf("Deleted rule %v and removed its role from %d member(s)", name, revoked), nil)
}

func (h *commandHandler) toggleRule(ctx context.Context, msg *discordgo.MessageCreate, name string, enabled bool) Response {
	_, err := h.autorole.ToggleRule(ctx, msg.GuildID, strings.ToLower(name), enabled)
	switch {
	case errors.Is(err, autorole.ErrRuleNotFound):
		return autoroleSyntaxError(msg, fmt.Sprintf("No rule named %v exists", name))
	case err != nil:
		return internalError("!autorole", msg, err)
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return autoroleSuccess(msg, fmt.Sprintf("Rule %v is now %v", name, state), nil)
}

func (h *commandHandler) listRules(ctx context.Context, msg *discordgo.MessageCreate) Response {
	rules, err := h.autorole.ListGuildRules(ctx, msg.GuildID)
	if err != nil {
		return internalError("!autorole", msg, err)
	}
	if len(rules) == 0 {
		return autoroleSuccess(msg, "This server has no autorole rules", nil)
	}
	fields := map[string]string{}
	for _, r := range rules {
		fields[r.Name] = ruleSummary(r)
	}
	return autoroleSuccess(msg, fmt.Sprintf("This server has %d autorole rule(s)", len(rules)), fields)
}

func (h *commandHandler) sweepAntiquity(ctx context.Context, msg *discordgo.MessageCreate) Response {
	enabled, err := h.autorole.FeatureEnabled(ctx, msg.GuildID)
	if err != nil {
		return internalError("!autorole", msg, err)
	} else if !enabled {
		return ResponseFeatureNotEnabled{
			command:         "!autorole sweep",
			commandMsg:      msg.Content,
			disabledFeature: guildmodels.FeatureAutorole,
			timestamp:       time.Now(),
		}
	}
	err = h.antiquity.SweepGuild(ctx, msg.GuildID)
	if errors.Is(err, scheduler.ErrSweepRunning) {
		return ResponseNotAllowed{
			command:     "!autorole",
			commandMsg:  msg.Content,
			description: "Another antiquity sweep is running, try again later",
			timestamp:   time.Now(),
		}
	} else if err != nil {
		return internalError("!autorole", msg, err)
	}
	return autoroleSuccess(msg, "Membership age rules were re-evaluated for every member", nil)
}

func ruleSummary(r guildmodels.Rule) string {
	mode := "live"
	if r.GrantKind() == guildmodels.GrantTimed {
		mode = r.Duration().String()
	}
	state := "enabled"
	if !r.Enabled {
		state = "disabled"
	}
	return fmt.Sprintf("%v → <@&%v> (%v, %v)", r.Trigger.Kind, r.RoleID, mode, state)
}

func ruleFields(r guildmodels.Rule, roleName string) map[string]string {
	mode := "live"
	if r.GrantKind() == guildmodels.GrantTimed {
		mode = r.Duration().String()
	}
	return map[string]string{
		"Role":     roleName,
		"Trigger":  string(r.Trigger.Kind),
		"Duration": mode,
	}
}

func autoroleSuccess(msg *discordgo.MessageCreate, description string, data map[string]string) Response {
	return ResponseSuccess{
		command:     "!autorole",
		commandMsg:  msg.Content,
		description: description,
		data:        data,
		timestamp:   time.Now(),
	}
}

func autoroleSyntaxError(msg *discordgo.MessageCreate, description string) Response {
	return ResponseSyntaxError{
		command:     "!autorole",
		commandMsg:  msg.Content,
		description: description,
		syntax:      handleAutoroleSyntax,
		timestamp:   time.Now(),
	}
}

func internalError(command string, msg *discordgo.MessageCreate, err error) Response {
	return ResponseInternalError{
		command:     command,
		commandMsg:  msg.Content,
		description: err.Error(),
		data:        map[string]string{},
		timestamp:   time.Now(),
	}
}
