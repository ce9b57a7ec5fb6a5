package pagescript

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/andybalholm/cascadia"
)

// cosmeticSelectors hide the common ad containers. Every entry must parse
// as a CSS selector; BuildCosmeticCSS rejects the whole set otherwise so a
// typo never ships an unparseable stylesheet into pages.
var cosmeticSelectors = []string{
	".ad",
	".ads",
	".adsbygoogle",
	".ad-banner",
	".ad-container",
	".ad-wrapper",
	".ad-slot",
	".ad-placeholder",
	".advert",
	".advertisement",
	".sponsored",
	".sponsored-content",
	".promoted-content",
	"#ad",
	"#ads",
	"#ad-container",
	"#banner-ad",
	"#sidebar-ad",
	"[id^='google_ads_']",
	"[id^='div-gpt-ad']",
	"[class*='banner-ad']",
	"[class*='ad-leaderboard']",
	"[data-ad-slot]",
	"[data-ad-client]",
	"iframe[src*='doubleclick.net']",
	"iframe[src*='googlesyndication.com']",
	"iframe[src*='adnxs.com']",
	"amp-ad",
	"ins.adsbygoogle",
}

// BuildCosmeticCSS validates every selector and renders the injection
// stylesheet.
func BuildCosmeticCSS() (string, error) {
	var b strings.Builder
	for _, sel := range cosmeticSelectors {
		if _, err := cascadia.Parse(sel); err != nil {
			return "", fmt.Errorf("cosmetic selector %q: %w", sel, err)
		}
		b.WriteString(sel)
		b.WriteString("{display:none!important;visibility:hidden!important}\n")
	}
	return b.String(), nil
}

// Selectors returns the cosmetic selector list.
func Selectors() []string {
	out := make([]string, len(cosmeticSelectors))
	copy(out, cosmeticSelectors)
	return out
}

// BuildBehaviorScript renders the in-page behavioral filter: element
// removal on mutation, popup suppression, dynamic script-load and
// fetch/XHR/eval interception, and the video ad-skip loop. adMarkers are
// URL substrings identifying ad loaders, shared with the network engine.
func BuildBehaviorScript(adMarkers []string) (string, error) {
	var buf bytes.Buffer
	err := behaviorTmpl.Execute(&buf, struct {
		Selectors []string
		Markers   []string
	}{cosmeticSelectors, adMarkers})
	if err != nil {
		return "", fmt.Errorf("render behavior script: %w", err)
	}
	script := buf.String()
	if err := Compile("cosmetic.js", script); err != nil {
		return "", fmt.Errorf("behavior script does not parse: %w", err)
	}
	return script, nil
}

var behaviorTmpl = template.Must(template.New("behavior").Parse(`(function () {
  'use strict';
  if (window.__velaCosmetic) return;
  window.__velaCosmetic = true;

  var SELECTORS = [{{range $i, $s := .Selectors}}{{if $i}},{{end}}{{printf "%q" $s}}{{end}}];
  var AD_MARKERS = [{{range $i, $m := .Markers}}{{if $i}},{{end}}{{printf "%q" $m}}{{end}}];

  function matchesMarker(url) {
    if (!url) return false;
    var lower = String(url).toLowerCase();
    for (var i = 0; i < AD_MARKERS.length; i++) {
      if (lower.indexOf(AD_MARKERS[i]) !== -1) return true;
    }
    return false;
  }

  // --- element removal, debounced via animation frames ---

  function sweep() {
    for (var i = 0; i < SELECTORS.length; i++) {
      var nodes;
      try { nodes = document.querySelectorAll(SELECTORS[i]); } catch (e) { continue; }
      for (var j = 0; j < nodes.length; j++) {
        nodes[j].remove();
      }
    }
  }

  var sweepQueued = false;
  function queueSweep() {
    if (sweepQueued) return;
    sweepQueued = true;
    var raf = window.requestAnimationFrame || function (fn) { setTimeout(fn, 16); };
    raf(function () {
      sweepQueued = false;
      sweep();
    });
  }

  // --- popup suppression ---

  var realOpen = window.open;
  window.open = function (url, name, features) {
    if (matchesMarker(url)) return null;
    // Windowless pop-unders pass no URL and detached features.
    if (!url && features && /width=|height=/.test(String(features))) return null;
    return realOpen ? realOpen.apply(window, arguments) : null;
  };

  // --- dynamic script-load interception ---

  var realCreateElement = document.createElement.bind(document);
  document.createElement = function (tagName) {
    var el = realCreateElement.apply(document, arguments);
    if (String(tagName).toLowerCase() !== 'script') return el;
    var realSrc = Object.getOwnPropertyDescriptor(HTMLScriptElement.prototype, 'src');
    if (!realSrc) return el;
    Object.defineProperty(el, 'src', {
      get: function () { return realSrc.get.call(el); },
      set: function (value) {
        if (matchesMarker(value)) return; // silently dropped
        realSrc.set.call(el, value);
      }
    });
    return el;
  };

  // --- fetch / XHR / eval interception ---

  if (window.fetch) {
    var realFetch = window.fetch;
    window.fetch = function (input) {
      var url = (input && input.url) ? input.url : input;
      if (matchesMarker(url)) {
        return Promise.resolve(new Response('', { status: 204 }));
      }
      return realFetch.apply(window, arguments);
    };
  }

  if (window.XMLHttpRequest) {
    var realXHROpen = XMLHttpRequest.prototype.open;
    XMLHttpRequest.prototype.open = function (method, url) {
      this.__velaBlocked = matchesMarker(url);
      if (this.__velaBlocked) {
        arguments[1] = 'about:blank';
      }
      return realXHROpen.apply(this, arguments);
    };
    var realXHRSend = XMLHttpRequest.prototype.send;
    XMLHttpRequest.prototype.send = function () {
      if (this.__velaBlocked) return;
      return realXHRSend.apply(this, arguments);
    };
  }

  var realEval = window.eval;
  window.eval = function (code) {
    if (typeof code === 'string' && matchesMarker(code)) return undefined;
    return realEval.call(window, code);
  };

  // --- video ad skipping ---

  var VIDEO_HOST = /(^|\.)youtube(-nocookie)?\.com$/.test(window.location.hostname);
  var savedRate = null;
  var savedMuted = null;

  function adShowing() {
    return document.querySelector('.ad-showing, .ad-interrupting') !== null;
  }

  function handleAdState() {
    var video = document.querySelector('video');
    if (adShowing()) {
      var skip = document.querySelector(
        '.ytp-skip-ad-button, .ytp-ad-skip-button, .ytp-ad-skip-button-modern');
      if (skip) {
        skip.click();
        return;
      }
      // No skip control yet: mute and fast-forward until it appears.
      if (video) {
        if (savedRate === null) {
          savedRate = video.playbackRate;
          savedMuted = video.muted;
        }
        video.muted = true;
        video.playbackRate = 16;
      }
    } else if (video && savedRate !== null) {
      video.playbackRate = savedRate;
      video.muted = savedMuted;
      savedRate = null;
      savedMuted = null;
    }
  }

  function start() {
    sweep();
    if (typeof MutationObserver !== 'undefined') {
      var observer = new MutationObserver(function () {
        queueSweep();
        if (VIDEO_HOST) handleAdState();
      });
      observer.observe(document.documentElement, { childList: true, subtree: true, attributes: true });
    }
    if (VIDEO_HOST) {
      setInterval(handleAdState, 250);
    }
  }

  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', start);
  } else {
    start();
  }
})();
`))
