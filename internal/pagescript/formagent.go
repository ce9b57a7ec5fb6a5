package pagescript

import (
	"bytes"
	"fmt"
	"text/template"
)

// FormAgentOptions parameterize the injected form agent. Timing values are
// milliseconds; zero values are replaced by defaults.
type FormAgentOptions struct {
	TabID              string
	SubmitDedupeMS     int
	BlurGraceMS        int
	MutationDebounceMS int
	MaxVirtualDepth    int
}

func (o *FormAgentOptions) applyDefaults() {
	if o.SubmitDedupeMS <= 0 {
		o.SubmitDedupeMS = 250
	}
	if o.BlurGraceMS < 150 {
		o.BlurGraceMS = 150
	}
	if o.MutationDebounceMS <= 0 {
		o.MutationDebounceMS = 100
	}
	if o.MaxVirtualDepth <= 0 {
		o.MaxVirtualDepth = 10
	}
}

// BuildFormAgent renders the form agent script for one tab and verifies it
// parses. The script is self-contained: it holds no host references and
// talks back only through the __velaHost postMessage channel.
func BuildFormAgent(opts FormAgentOptions) (string, error) {
	opts.applyDefaults()

	var buf bytes.Buffer
	if err := formAgentTmpl.Execute(&buf, opts); err != nil {
		return "", fmt.Errorf("render form agent: %w", err)
	}
	script := buf.String()
	if err := Compile("formagent.js", script); err != nil {
		return "", fmt.Errorf("form agent does not parse: %w", err)
	}
	return script, nil
}

var formAgentTmpl = template.Must(template.New("formagent").Parse(`(function () {
  'use strict';
  if (window.__velaFormAgent) return;
  window.__velaFormAgent = true;

  var TAB_ID = {{printf "%q" .TabID}};
  var SUBMIT_DEDUPE_MS = {{.SubmitDedupeMS}};
  var BLUR_GRACE_MS = {{.BlurGraceMS}};
  var MUTATION_DEBOUNCE_MS = {{.MutationDebounceMS}};
  var MAX_VIRTUAL_DEPTH = {{.MaxVirtualDepth}};

  function send(msg) {
    msg.tab_id = TAB_ID;
    msg.url = window.location.href;
    try {
      window.__velaHost.postMessage(JSON.stringify(msg));
    } catch (e) { /* host channel gone, page is closing */ }
  }

  function isTextLike(input) {
    var t = (input.type || 'text').toLowerCase();
    return t === 'text' || t === 'email' || t === '';
  }

  // Resolve the password field to an enclosing form. True form ancestor
  // wins; otherwise walk up looking for a container with at least two
  // inputs, one password and one text-like. Password fields with no
  // qualifying container within the depth bound are formless and skipped.
  function resolveForm(passwordField) {
    if (passwordField.form) {
      return { root: passwordField.form, virtual: false };
    }
    var node = passwordField.parentElement;
    for (var depth = 0; node && depth < MAX_VIRTUAL_DEPTH; depth++) {
      var inputs = node.querySelectorAll('input');
      if (inputs.length >= 2) {
        var hasPassword = false, hasText = false;
        for (var i = 0; i < inputs.length; i++) {
          if (inputs[i].type === 'password') hasPassword = true;
          else if (isTextLike(inputs[i])) hasText = true;
        }
        if (hasPassword && hasText) {
          return { root: node, virtual: true };
        }
      }
      node = node.parentElement;
    }
    return null;
  }

  var USERNAME_SELECTORS = [
    'input[autocomplete="username"]',
    'input[autocomplete="email"]',
    'input[type="email"]',
    'input[name*="user" i]',
    'input[name*="email" i]',
    'input[name*="login" i]',
    'input[id*="user" i]',
    'input[id*="email" i]',
    'input[id*="login" i]',
    'input[placeholder*="email" i]',
    'input[placeholder*="user" i]'
  ];

  function findUsernameField(root, passwordField) {
    for (var i = 0; i < USERNAME_SELECTORS.length; i++) {
      var candidates = root.querySelectorAll(USERNAME_SELECTORS[i]);
      for (var j = 0; j < candidates.length; j++) {
        if (candidates[j] !== passwordField && candidates[j].type !== 'password') {
          return candidates[j];
        }
      }
    }
    // Fallback: nearest preceding text-like input in document order.
    var inputs = root.querySelectorAll('input');
    var best = null;
    for (var k = 0; k < inputs.length; k++) {
      if (inputs[k] === passwordField) break;
      if (isTextLike(inputs[k])) best = inputs[k];
    }
    return best;
  }

  var lastSubmit = { key: '', at: 0 };

  function reportSubmission(usernameField, passwordField) {
    var username = usernameField ? usernameField.value : '';
    var secret = passwordField.value;
    if (!secret) return;

    // Enter, click and submit listeners all fire for one submission;
    // collapse repeats for the same field pair inside the dedupe window.
    var key = username + '\u0000' + secret;
    var now = Date.now();
    if (key === lastSubmit.key && now - lastSubmit.at < SUBMIT_DEDUPE_MS) return;
    lastSubmit = { key: key, at: now };

    send({ tag: 'credential-submit', username: username, secret: secret });
  }

  function looksLikeSubmitControl(el) {
    if (!el || !el.tagName) return false;
    var tag = el.tagName.toLowerCase();
    if (tag === 'button') return !el.type || el.type === 'submit' || el.type === '';
    if (tag === 'input') return el.type === 'submit';
    return false;
  }

  var wired = (typeof WeakSet !== 'undefined') ? new WeakSet() : null;
  function alreadyWired(field) {
    if (!wired) return false;
    if (wired.has(field)) return true;
    wired.add(field);
    return false;
  }

  function wireForm(form, passwordField) {
    if (alreadyWired(passwordField)) return;
    var usernameField = findUsernameField(form.root, passwordField);

    if (!form.virtual) {
      form.root.addEventListener('submit', function () {
        reportSubmission(usernameField, passwordField);
      }, true);
    }
    passwordField.addEventListener('keydown', function (ev) {
      if (ev.key === 'Enter') reportSubmission(usernameField, passwordField);
    }, true);
    form.root.addEventListener('click', function (ev) {
      var el = ev.target;
      while (el && el !== form.root) {
        if (looksLikeSubmitControl(el)) {
          reportSubmission(usernameField, passwordField);
          return;
        }
        el = el.parentElement;
      }
    }, true);

    passwordField.addEventListener('focus', function () {
      var rect = passwordField.getBoundingClientRect();
      send({
        tag: 'autofill-focus',
        field: { x: rect.left, y: rect.top, width: rect.width, height: rect.height }
      });
    }, true);
    passwordField.addEventListener('blur', function () {
      // Grace delay: a click on the dropdown steals focus first.
      setTimeout(function () { send({ tag: 'autofill-blur' }); }, BLUR_GRACE_MS);
    }, true);

    window.__velaFillTargets = window.__velaFillTargets || [];
    window.__velaFillTargets.push({ username: usernameField, password: passwordField });
  }

  function setNativeValue(field, value) {
    var proto = Object.getPrototypeOf(field);
    var desc = Object.getOwnPropertyDescriptor(proto, 'value');
    if (desc && desc.set) {
      desc.set.call(field, value);
    } else {
      field.value = value;
    }
    field.dispatchEvent(new Event('input', { bubbles: true }));
  }

  // Host-invoked fill entry point. Two ticks: username settles before the
  // password write so framework-managed inputs track both updates.
  window.__velaAutofill = function (username, secret) {
    var targets = window.__velaFillTargets || [];
    if (targets.length === 0) return;
    var t = targets[targets.length - 1];
    setTimeout(function () {
      if (t.username) setNativeValue(t.username, username);
      setTimeout(function () {
        setNativeValue(t.password, secret);
        if (t.username) t.username.dispatchEvent(new Event('change', { bubbles: true }));
        t.password.dispatchEvent(new Event('change', { bubbles: true }));
      }, 0);
    }, 0);
  };

  function scan() {
    var fields = document.querySelectorAll('input[type="password"]');
    var found = 0, virtual = false;
    for (var i = 0; i < fields.length; i++) {
      var form = resolveForm(fields[i]);
      if (!form) continue;
      found++;
      if (form.virtual) virtual = true;
      wireForm(form, fields[i]);
    }
    if (found > 0) {
      send({ tag: 'login-form-detected', form_count: found, virtual: virtual });
    }
    return found;
  }

  // SPAs mount login forms after load; rescan on inserted password fields.
  var rescanTimer = null;
  function observe() {
    if (typeof MutationObserver === 'undefined') return;
    var observer = new MutationObserver(function (mutations) {
      var relevant = false;
      for (var i = 0; i < mutations.length && !relevant; i++) {
        var added = mutations[i].addedNodes;
        for (var j = 0; j < added.length; j++) {
          var n = added[j];
          if (n.nodeType !== 1) continue;
          if ((n.matches && n.matches('input[type="password"]')) ||
              (n.querySelector && n.querySelector('input[type="password"]'))) {
            relevant = true;
            break;
          }
        }
      }
      if (!relevant) return;
      if (rescanTimer) clearTimeout(rescanTimer);
      rescanTimer = setTimeout(scan, MUTATION_DEBOUNCE_MS);
    });
    observer.observe(document.documentElement, { childList: true, subtree: true });
  }

  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', function () { scan(); observe(); });
  } else {
    scan();
    observe();
  }
})();
`))
